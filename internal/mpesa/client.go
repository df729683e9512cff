package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

// Client initiates STK pushes against the provider. Initiation is
// synchronous; the actual payment outcome arrives later on the webhook.
type Client struct {
	BaseURL     string
	ShortCode   string
	CallbackURL string
	HTTP        *http.Client
}

func NewClient(baseURL, shortCode, callbackURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		ShortCode:   shortCode,
		CallbackURL: callbackURL,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
	}
}

type pushRequest struct {
	ShortCode        string `json:"BusinessShortCode"`
	Amount           string `json:"Amount"`
	PhoneNumber      string `json:"PhoneNumber"`
	CallBackURL      string `json:"CallBackURL"`
	AccountReference string `json:"AccountReference"`
	TransactionDesc  string `json:"TransactionDesc"`
}

// Push asks the provider to prompt the phone for payment. A failure here
// leaves the order PAYMENT_PENDING; the caller may retry.
func (c *Client) Push(ctx context.Context, reference, phone string, amount decimal.Decimal) error {
	body, err := json.Marshal(pushRequest{
		ShortCode:        c.ShortCode,
		Amount:           amount.String(),
		PhoneNumber:      phone,
		CallBackURL:      c.CallbackURL,
		AccountReference: reference,
		TransactionDesc:  "Mkulima Market order",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &market.GatewayError{Provider: "mpesa", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &market.GatewayError{Provider: "mpesa", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

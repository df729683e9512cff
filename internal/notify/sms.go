package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnjuguna/mkulima-market/internal/config"
)

type SMSSender struct {
	cfg  config.NotifierConfig
	http *http.Client
}

func NewSMSSender(cfg config.NotifierConfig) *SMSSender {
	return &SMSSender{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}
}

type smsResponse struct {
	SMSMessageData struct {
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (s *SMSSender) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("username", s.cfg.SMSUsername)
	form.Set("to", phone)
	form.Set("message", message)
	if s.cfg.SMSSenderID != "" {
		form.Set("from", s.cfg.SMSSenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SMSURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", s.cfg.SMSAPIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: status %d", resp.StatusCode)
	}

	var parsed smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("send sms: decode response: %w", err)
	}
	for _, rec := range parsed.SMSMessageData.Recipients {
		if rec.StatusCode >= 400 {
			return fmt.Errorf("send sms to %s: %s", rec.Number, rec.Status)
		}
	}
	return nil
}

package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID int64     `json:"order_id"`
	UserID  string    `json:"user_id"`
	Total   string    `json:"total"`
	Items   []ItemQty `json:"items"`
}

type OrderConfirmedPayload struct {
	OrderID    int64  `json:"order_id"`
	UserID     string `json:"user_id"`
	PaymentRef string `json:"payment_ref"`
	Total      string `json:"total"`
}

type OrderCancelledPayload struct {
	OrderID int64  `json:"order_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason"` // e.g. PAYMENT_FAILED, ABANDONED
}

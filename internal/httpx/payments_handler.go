package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/mpesa"
)

type PaymentStore interface {
	Initiate(ctx context.Context, orderID int64, userID, phone, method string) (market.PaymentAttempt, error)
	Resolve(ctx context.Context, reference string, outcome market.PaymentOutcome) (market.PaymentResolution, error)
}

// PaymentGateway initiates the provider-side prompt after the attempt is
// recorded.
type PaymentGateway interface {
	Push(ctx context.Context, reference, phone string, amount decimal.Decimal) error
}

// CallbackDedup is the redis fast path for duplicate callbacks; the row
// lock in PaymentStore.Resolve stays the source of truth.
type CallbackDedup interface {
	Seen(ctx context.Context, reference string) bool
	Mark(ctx context.Context, reference string)
}

type PaymentsHandler struct {
	Orders   OrderStore
	Payments PaymentStore
	Gateway  PaymentGateway
	Verifier *mpesa.Verifier
	Dedup    CallbackDedup
	Producer EventPublisher
	Service  string
	Log      logrus.FieldLogger
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/api/payments/mpesa", h.initiate)
	r.Post("/api/payments/mpesa/callback", h.callback)
}

type initiateReq struct {
	OrderID     int64  `json:"order_id"`
	Amount      string `json:"amount"`
	PhoneNumber string `json:"phone_number"`
}

func (h *PaymentsHandler) initiate(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	var req initiateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == 0 || req.PhoneNumber == "" {
		writeErrorMsg(w, http.StatusBadRequest, "missing fields")
		return
	}

	o, _, err := h.Orders.Order(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Ownership before the amount comparison, or the mismatch response
	// would leak other users' order totals.
	if o.UserID != ident.UserID {
		writeError(w, market.ErrForbidden)
		return
	}

	// The client echoes the amount it showed the user; a mismatch means a
	// stale cart page, not a negotiation.
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid amount")
			return
		}
		if !amount.Equal(o.TotalAmount) {
			writeErrorMsg(w, http.StatusBadRequest, "amount does not match order total")
			return
		}
	}

	attempt, err := h.Payments.Initiate(r.Context(), req.OrderID, ident.UserID, req.PhoneNumber, "mpesa")
	if err != nil {
		writeError(w, err)
		return
	}

	// The order is already PAYMENT_PENDING; a push failure is retryable
	// without a new attempt.
	if err := h.Gateway.Push(r.Context(), attempt.Reference, attempt.Phone, attempt.Amount); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"payment_reference": attempt.Reference,
		"message":           "Payment initiated successfully",
	})
}

type callbackReq struct {
	Reference  string `json:"reference"`
	ResultCode int    `json:"result_code"` // 0 = success
	ResultDesc string `json:"result_desc"`
}

// callback is the provider-facing webhook. Signature first, then dedup,
// then the idempotent resolve; duplicates and replays ack without effect.
func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !h.Verifier.Verify(body, r.Header.Get(mpesa.SignatureHeader)) {
		writeErrorMsg(w, http.StatusUnauthorized, "bad signature")
		return
	}

	var req callbackReq
	if err := json.Unmarshal(body, &req); err != nil || req.Reference == "" {
		writeErrorMsg(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if h.Dedup != nil && h.Dedup.Seen(r.Context(), req.Reference) {
		writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Duplicate ignored"})
		return
	}

	res, err := h.Payments.Resolve(r.Context(), req.Reference, market.PaymentOutcome{
		Success: req.ResultCode == 0,
		Detail:  req.ResultDesc,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Dedup != nil {
		h.Dedup.Mark(r.Context(), req.Reference)
	}

	if !res.AlreadyResolved {
		switch res.Order.Status {
		case market.StatusConfirmed:
			PublishOrderEvent(h.Producer, h.Service, r.Header.Get("X-Request-Id"),
				market.TopicOrderConfirmed, market.EventOrderConfirmed, res.Order.ID,
				market.OrderConfirmedPayload{
					OrderID:    res.Order.ID,
					UserID:     res.Order.UserID,
					PaymentRef: res.Attempt.Reference,
					Total:      res.Order.TotalAmount.String(),
				})
		case market.StatusCancelled:
			PublishOrderEvent(h.Producer, h.Service, r.Header.Get("X-Request-Id"),
				market.TopicOrderCancelled, market.EventOrderCancelled, res.Order.ID,
				market.OrderCancelledPayload{
					OrderID: res.Order.ID, UserID: res.Order.UserID, Reason: "PAYMENT_FAILED",
				})
		default:
			// success callback raced the reaper; money may need a refund
			h.Log.WithFields(logrus.Fields{
				"order_id": res.Order.ID, "reference": req.Reference, "status": res.Order.Status,
			}).Warn("payment resolved against a non-pending order")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

package market

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SweptOrder identifies an order a sweep actually cancelled, with enough
// context to notify its owner.
type SweptOrder struct {
	OrderID int64
	UserID  string
}

// ReaperStore is the slice of storage the reaper needs. Both sweeps cancel
// the matched orders and release their reservations in one transaction per
// order, so a crashed sweep never leaves stock half-returned.
type ReaperStore interface {
	// SweepAbandoned cancels CREATED orders older than cutoff.
	SweepAbandoned(ctx context.Context, cutoff time.Time) ([]SweptOrder, error)
	// SweepExpiredPayments fails PAYMENT_PENDING orders whose attempt has
	// not resolved by cutoff, then cancels them.
	SweepExpiredPayments(ctx context.Context, cutoff time.Time) ([]SweptOrder, error)
}

// Reaper sweeps orders whose checkout was abandoned or whose payment
// callback never arrived, so reservations cannot leak stock forever.
type Reaper struct {
	Store          ReaperStore
	Interval       time.Duration
	AbandonAfter   time.Duration // CREATED -> CANCELLED window
	PaymentTimeout time.Duration // PAYMENT_PENDING -> PAYMENT_FAILED window
	Log            logrus.FieldLogger

	// OnCancelled, if set, is called for each swept order (used to publish
	// cancellation events).
	OnCancelled func(o SweptOrder, reason string)
}

func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	now := time.Now()

	abandoned, err := r.Store.SweepAbandoned(ctx, now.Add(-r.AbandonAfter))
	if err != nil {
		r.Log.WithError(err).Error("reaper: abandoned sweep failed")
	}
	for _, o := range abandoned {
		r.Log.WithField("order_id", o.OrderID).Info("reaper: cancelled abandoned order")
		if r.OnCancelled != nil {
			r.OnCancelled(o, "ABANDONED")
		}
	}

	expired, err := r.Store.SweepExpiredPayments(ctx, now.Add(-r.PaymentTimeout))
	if err != nil {
		r.Log.WithError(err).Error("reaper: payment sweep failed")
	}
	for _, o := range expired {
		r.Log.WithField("order_id", o.OrderID).Info("reaper: failed unresolved payment")
		if r.OnCancelled != nil {
			r.OnCancelled(o, "PAYMENT_TIMEOUT")
		}
	}
}

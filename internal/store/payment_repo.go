package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type PaymentRepo struct{ DB *pgxpool.Pool }

// NewReference builds a provider-style reference: MP + millis + a short
// random tail. Unique per attempt, opaque to the client.
func NewReference() string {
	tail := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("MP%d%s", time.Now().UnixMilli(), tail)
}

// Initiate records a payment attempt and moves the order to
// PAYMENT_PENDING. Calling it again while the attempt is still open hands
// back the same attempt, so a failed provider push can be retried with the
// same reference instead of stranding the order.
func (r *PaymentRepo) Initiate(ctx context.Context, orderID int64, userID, phone, method string) (market.PaymentAttempt, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.PaymentAttempt{}, err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return market.PaymentAttempt{}, err
	}
	if o.UserID != userID {
		return market.PaymentAttempt{}, market.ErrForbidden
	}
	if o.Status == market.StatusPaymentPending {
		a, err := r.openAttemptTx(ctx, tx, orderID, phone)
		if err != nil {
			return market.PaymentAttempt{}, err
		}
		return a, tx.Commit(ctx)
	}
	if o.Status != market.StatusCreated {
		return market.PaymentAttempt{}, &market.InvalidStateError{
			OrderID: orderID, State: o.Status, Op: "initiate payment",
		}
	}

	a := market.PaymentAttempt{
		OrderID:   orderID,
		Reference: NewReference(),
		Amount:    o.TotalAmount,
		Phone:     phone,
		Status:    market.AttemptInitiated,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payment_attempts(order_id, reference, amount, phone, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.OrderID, a.Reference, a.Amount, a.Phone, a.Status,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return market.PaymentAttempt{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, payment_method = $3, payment_reference = $4, updated_at = now()
		WHERE id = $1`,
		orderID, market.StatusPaymentPending, method, a.Reference); err != nil {
		return market.PaymentAttempt{}, err
	}
	return a, tx.Commit(ctx)
}

// Resolve applies a payment outcome exactly once. The row lock on the
// attempt makes the idempotency check and the effect one atomic unit, so
// duplicate or concurrent callbacks for the same reference cannot
// double-commit or double-release.
func (r *PaymentRepo) Resolve(ctx context.Context, reference string, outcome market.PaymentOutcome) (market.PaymentResolution, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.PaymentResolution{}, err
	}
	defer tx.Rollback(ctx)

	a, err := scanAttempt(tx.QueryRow(ctx, `
		SELECT id, order_id, reference, amount, phone, status, created_at, resolved_at
		FROM payment_attempts WHERE reference = $1 FOR UPDATE`, reference))
	if err != nil {
		return market.PaymentResolution{}, err
	}

	if a.Status.Terminal() {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, a.OrderID))
		if err != nil {
			return market.PaymentResolution{}, err
		}
		return market.PaymentResolution{Order: o, Attempt: a, AlreadyResolved: true}, tx.Commit(ctx)
	}

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, a.OrderID))
	if err != nil {
		return market.PaymentResolution{}, err
	}

	// The reaper may have failed the order before the callback arrived.
	// The attempt is closed but the order is left alone; its stock has
	// already been returned.
	if o.Status != market.StatusPaymentPending {
		a, err = r.closeAttemptTx(ctx, tx, a.ID, market.AttemptFailed)
		if err != nil {
			return market.PaymentResolution{}, err
		}
		return market.PaymentResolution{Order: o, Attempt: a}, tx.Commit(ctx)
	}

	if outcome.Success {
		if err := commitReservationsTx(ctx, tx, o.ID); err != nil {
			return market.PaymentResolution{}, err
		}
		o, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, payment_status = $3, updated_at = now()
			WHERE id = $1 RETURNING `+orderCols,
			o.ID, market.StatusConfirmed, market.PaymentPaid))
		if err != nil {
			return market.PaymentResolution{}, err
		}
		a, err = r.closeAttemptTx(ctx, tx, a.ID, market.AttemptSucceeded)
	} else {
		if err := releaseReservationsTx(ctx, tx, o.ID); err != nil {
			return market.PaymentResolution{}, err
		}
		o, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, payment_status = $3, updated_at = now()
			WHERE id = $1 RETURNING `+orderCols,
			o.ID, market.StatusCancelled, market.PaymentFailedStatus))
		if err != nil {
			return market.PaymentResolution{}, err
		}
		a, err = r.closeAttemptTx(ctx, tx, a.ID, market.AttemptFailed)
	}
	if err != nil {
		return market.PaymentResolution{}, err
	}
	return market.PaymentResolution{Order: o, Attempt: a}, tx.Commit(ctx)
}

// openAttemptTx finds the still-initiated attempt behind a PAYMENT_PENDING
// order. A pending order always has one; a closed attempt means a callback
// already moved the order on, so the state check above would have failed.
func (r *PaymentRepo) openAttemptTx(ctx context.Context, tx pgx.Tx, orderID int64, phone string) (market.PaymentAttempt, error) {
	a, err := scanAttempt(tx.QueryRow(ctx, `
		SELECT id, order_id, reference, amount, phone, status, created_at, resolved_at
		FROM payment_attempts
		WHERE order_id = $1 AND status = $2
		ORDER BY id DESC LIMIT 1 FOR UPDATE`,
		orderID, market.AttemptInitiated))
	if err != nil {
		if errors.Is(err, market.ErrNotFound) {
			return market.PaymentAttempt{}, &market.InvalidStateError{
				OrderID: orderID, State: market.StatusPaymentPending, Op: "initiate payment",
			}
		}
		return market.PaymentAttempt{}, err
	}
	if a.Phone != phone {
		if _, err := tx.Exec(ctx, `UPDATE payment_attempts SET phone = $2 WHERE id = $1`, a.ID, phone); err != nil {
			return market.PaymentAttempt{}, err
		}
		a.Phone = phone
	}
	return a, nil
}

func (r *PaymentRepo) closeAttemptTx(ctx context.Context, tx pgx.Tx, id int64, s market.AttemptStatus) (market.PaymentAttempt, error) {
	return scanAttempt(tx.QueryRow(ctx, `
		UPDATE payment_attempts SET status = $2, resolved_at = now()
		WHERE id = $1
		RETURNING id, order_id, reference, amount, phone, status, created_at, resolved_at`,
		id, s))
}

func scanAttempt(row pgx.Row) (market.PaymentAttempt, error) {
	var a market.PaymentAttempt
	err := row.Scan(&a.ID, &a.OrderID, &a.Reference, &a.Amount, &a.Phone,
		&a.Status, &a.CreatedAt, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.PaymentAttempt{}, market.ErrNotFound
	}
	return a, err
}

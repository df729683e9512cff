package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type OrderRepo struct{ DB *pgxpool.Pool }

const orderCols = `
	id, user_id, total_amount, status, payment_status, payment_method,
	payment_reference, delivery_address, delivery_phone, delivery_instructions,
	created_at, updated_at`

// CreateFromCart converts the user's cart into an order in one transaction:
// reserve stock line by line with a conditional decrement, freeze prices
// into order items, record reservations, clear the cart. Any shortage
// aborts the whole transaction, so stock and cart are untouched on failure.
func (r *OrderRepo) CreateFromCart(ctx context.Context, userID string, info market.DeliveryInfo) (market.Order, []market.OrderItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.Order{}, nil, err
	}
	defer tx.Rollback(ctx)

	lines, err := cartSnapshotTx(ctx, tx, userID)
	if err != nil {
		return market.Order{}, nil, err
	}
	if len(lines) == 0 {
		return market.Order{}, nil, market.ErrEmptyCart
	}

	for _, l := range lines {
		if !l.IsActive {
			return market.Order{}, nil, &market.ProductUnavailableError{
				ProductID: l.ProductID, ProductName: l.ProductName,
			}
		}
		// The stock >= qty guard inside the UPDATE is the linearization
		// point; two concurrent checkouts cannot both pass it.
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND is_active AND stock >= $2`,
			l.ProductID, l.Qty)
		if err != nil {
			return market.Order{}, nil, err
		}
		if ct.RowsAffected() == 0 {
			var available int
			if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, l.ProductID).Scan(&available); err != nil {
				return market.Order{}, nil, err
			}
			return market.Order{}, nil, &market.StockShortageError{
				ProductID: l.ProductID, ProductName: l.ProductName,
				Requested: l.Qty, Available: available,
			}
		}
	}

	quote := market.Quote(lines)

	var o market.Order
	o.UserID = userID
	o.TotalAmount = quote.Total
	o.Status = market.StatusCreated
	o.PaymentStatus = market.PaymentPendingStatus
	o.DeliveryAddress = info.Address
	o.DeliveryPhone = info.Phone
	o.DeliveryInstructions = info.Instructions
	o.PaymentMethod = info.Method
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, total_amount, status, payment_status, payment_method,
		                   delivery_address, delivery_phone, delivery_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		userID, quote.Total, o.Status, o.PaymentStatus, info.Method,
		info.Address, info.Phone, info.Instructions,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return market.Order{}, nil, err
	}

	items := make([]market.OrderItem, 0, len(lines))
	itemSum := decimal.Zero
	for _, l := range lines {
		it := market.OrderItem{
			OrderID:    o.ID,
			ProductID:  l.ProductID,
			FarmerID:   l.FarmerID,
			Qty:        l.Qty,
			UnitPrice:  l.UnitPrice,
			TotalPrice: l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))),
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, farmer_id, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			it.OrderID, it.ProductID, it.FarmerID, it.Qty, it.UnitPrice, it.TotalPrice,
		).Scan(&it.ID)
		if err != nil {
			return market.Order{}, nil, err
		}
		itemSum = itemSum.Add(it.TotalPrice)
		items = append(items, it)

		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, qty, status)
			VALUES ($1, $2, $3, 'RESERVED')
			ON CONFLICT (order_id, product_id) DO NOTHING`,
			o.ID, l.ProductID, l.Qty); err != nil {
			return market.Order{}, nil, err
		}
	}

	if !itemSum.Add(quote.DeliveryFee).Equal(o.TotalAmount) {
		return market.Order{}, nil, &market.IntegrityError{
			Detail: "order item totals do not sum to the order amount",
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return market.Order{}, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return market.Order{}, nil, err
	}
	return o, items, nil
}

func (r *OrderRepo) Order(ctx context.Context, id int64) (market.Order, []market.OrderItem, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return market.Order{}, nil, err
	}
	items, err := r.items(ctx, id)
	if err != nil {
		return market.Order{}, nil, err
	}
	return o, items, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string) ([]market.Order, error) {
	return r.list(ctx, `SELECT `+orderCols+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListByFarmer returns orders containing at least one of the farmer's items.
func (r *OrderRepo) ListByFarmer(ctx context.Context, farmerID int64) ([]market.Order, error) {
	return r.list(ctx, `
		SELECT DISTINCT `+orderColsPrefixed("o")+`
		FROM orders o JOIN order_items i ON i.order_id = o.id
		WHERE i.farmer_id = $1
		ORDER BY o.created_at DESC`, farmerID)
}

func (r *OrderRepo) HasFarmerItems(ctx context.Context, orderID, farmerID int64) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_items WHERE order_id = $1 AND farmer_id = $2`,
		orderID, farmerID).Scan(&n)
	return n > 0, err
}

// Advance applies an admin/farmer fulfillment step; only forward moves
// along CONFIRMED -> SHIPPED -> DELIVERED pass.
func (r *OrderRepo) Advance(ctx context.Context, id int64, to market.Status) (market.Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.Order{}, err
	}
	defer tx.Rollback(ctx)

	var from market.Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	if err != nil {
		return market.Order{}, err
	}
	if !market.IsFulfillment(from, to) {
		return market.Order{}, &market.InvalidTransitionError{OrderID: id, From: from, To: to}
	}

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+orderCols, id, to))
	if err != nil {
		return market.Order{}, err
	}
	return o, tx.Commit(ctx)
}

// Cancel lets the owner (or an admin) close an order that is not in the
// payment pipeline: CREATED before payment starts, or PAYMENT_FAILED after
// the payment window lapsed. Releasing reservations is a no-op for
// PAYMENT_FAILED orders, the sweep already returned their stock.
func (r *OrderRepo) Cancel(ctx context.Context, id int64, userID string, admin bool) (market.Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.Order{}, err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return market.Order{}, err
	}
	if !admin && o.UserID != userID {
		return market.Order{}, market.ErrNotFound
	}
	if o.Status != market.StatusCreated && o.Status != market.StatusPaymentFailed {
		return market.Order{}, &market.InvalidTransitionError{OrderID: id, From: o.Status, To: market.StatusCancelled}
	}

	if err := releaseReservationsTx(ctx, tx, id); err != nil {
		return market.Order{}, err
	}
	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
		RETURNING `+orderCols, id, market.StatusCancelled))
	if err != nil {
		return market.Order{}, err
	}
	return o, tx.Commit(ctx)
}

// SweepAbandoned cancels CREATED orders older than cutoff and releases
// their reservations, one transaction per order.
func (r *OrderRepo) SweepAbandoned(ctx context.Context, cutoff time.Time) ([]market.SweptOrder, error) {
	candidates, err := r.collectSweepable(ctx, `
		SELECT id, user_id FROM orders WHERE status = $1 AND created_at < $2`,
		market.StatusCreated, cutoff)
	if err != nil {
		return nil, err
	}
	var swept []market.SweptOrder
	for _, c := range candidates {
		done, err := r.cancelTx(ctx, c.OrderID, market.StatusCreated, market.StatusCancelled, market.PaymentPendingStatus)
		if err != nil {
			return swept, err
		}
		if done {
			swept = append(swept, c)
		}
	}
	return swept, nil
}

// SweepExpiredPayments moves PAYMENT_PENDING orders whose callback never
// arrived to PAYMENT_FAILED and releases their stock.
func (r *OrderRepo) SweepExpiredPayments(ctx context.Context, cutoff time.Time) ([]market.SweptOrder, error) {
	candidates, err := r.collectSweepable(ctx, `
		SELECT id, user_id FROM orders WHERE status = $1 AND updated_at < $2`,
		market.StatusPaymentPending, cutoff)
	if err != nil {
		return nil, err
	}
	var swept []market.SweptOrder
	for _, c := range candidates {
		done, err := r.cancelTx(ctx, c.OrderID, market.StatusPaymentPending, market.StatusPaymentFailed, market.PaymentFailedStatus)
		if err != nil {
			return swept, err
		}
		if done {
			swept = append(swept, c)
		}
	}
	return swept, nil
}

// cancelTx re-checks the state under lock (a callback may have raced the
// sweep), releases active reservations and moves the order to `to`. Returns
// false when the order was resolved in the meantime.
func (r *OrderRepo) cancelTx(ctx context.Context, id int64, from, to market.Status, pay market.PaymentStatus) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var cur market.Status
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&cur); err != nil {
		return false, err
	}
	if cur != from {
		return false, nil
	}

	if err := releaseReservationsTx(ctx, tx, id); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
		id, to, pay); err != nil {
		return false, err
	}
	if to == market.StatusPaymentFailed {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_attempts SET status = 'failed', resolved_at = now()
			WHERE order_id = $1 AND status = 'initiated'`, id); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func (r *OrderRepo) items(ctx context.Context, orderID int64) ([]market.OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, farmer_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.OrderItem
	for rows.Next() {
		var it market.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.FarmerID,
			&it.Qty, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *OrderRepo) list(ctx context.Context, q string, args ...any) ([]market.Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) collectSweepable(ctx context.Context, q string, args ...any) ([]market.SweptOrder, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.SweptOrder
	for rows.Next() {
		var o market.SweptOrder
		if err := rows.Scan(&o.OrderID, &o.UserID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// releaseReservationsTx returns still-reserved quantities to stock and
// marks the reservations RELEASED. Running it twice is a no-op.
func releaseReservationsTx(ctx context.Context, tx pgx.Tx, orderID int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE products p SET stock = p.stock + r.qty, updated_at = now()
		FROM reservations r
		WHERE r.product_id = p.id AND r.order_id = $1 AND r.status = 'RESERVED'`,
		orderID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'RELEASED'
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID)
	return err
}

// commitReservationsTx marks the decrement permanent; stock is untouched.
func commitReservationsTx(ctx context.Context, tx pgx.Tx, orderID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'COMMITTED'
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID)
	return err
}

func cartSnapshotTx(ctx context.Context, tx pgx.Tx, userID string) ([]market.CartLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+cartLineCols+`
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.CartLine
	for rows.Next() {
		l, err := scanCartLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (market.Order, error) {
	var o market.Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.PaymentReference, &o.DeliveryAddress, &o.DeliveryPhone,
		&o.DeliveryInstructions, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	return o, err
}

func orderColsPrefixed(p string) string {
	return p + `.id, ` + p + `.user_id, ` + p + `.total_amount, ` + p + `.status, ` +
		p + `.payment_status, ` + p + `.payment_method, ` + p + `.payment_reference, ` +
		p + `.delivery_address, ` + p + `.delivery_phone, ` + p + `.delivery_instructions, ` +
		p + `.created_at, ` + p + `.updated_at`
}

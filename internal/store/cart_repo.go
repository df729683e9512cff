package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type CartRepo struct{ DB *pgxpool.Pool }

const cartLineCols = `
	c.id, c.user_id, c.product_id, p.name, p.farmer_id, p.price, p.unit,
	c.quantity, p.stock, p.is_active, c.created_at`

// Add merges additively on (user, product). The stock check here is soft:
// the reservation at checkout is the hard one, this only stops obviously
// hopeless additions early.
func (r *CartRepo) Add(ctx context.Context, userID string, productID int64, qty int) (market.CartLine, error) {
	if qty < 1 {
		return market.CartLine{}, fmt.Errorf("%w: quantity must be >= 1", market.ErrInvalidArgument)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return market.CartLine{}, err
	}
	defer tx.Rollback(ctx)

	var name string
	var stock int
	var active bool
	err = tx.QueryRow(ctx, `SELECT name, stock, is_active FROM products WHERE id = $1`, productID).
		Scan(&name, &stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.CartLine{}, market.ErrNotFound
	}
	if err != nil {
		return market.CartLine{}, err
	}
	if !active {
		return market.CartLine{}, &market.ProductUnavailableError{ProductID: productID, ProductName: name}
	}

	existing := 0
	err = tx.QueryRow(ctx, `SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return market.CartLine{}, err
	}
	if existing+qty > stock {
		return market.CartLine{}, &market.StockShortageError{
			ProductID: productID, ProductName: name, Requested: existing + qty, Available: stock,
		}
	}

	var lineID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO cart_items(user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`,
		userID, productID, qty,
	).Scan(&lineID)
	if err != nil {
		return market.CartLine{}, err
	}

	line, err := r.lineTx(ctx, tx, lineID)
	if err != nil {
		return market.CartLine{}, err
	}
	return line, tx.Commit(ctx)
}

// SetQuantity replaces the quantity; zero is rejected, removal is explicit.
func (r *CartRepo) SetQuantity(ctx context.Context, userID string, lineID int64, qty int) (market.CartLine, error) {
	if qty < 1 {
		return market.CartLine{}, fmt.Errorf("%w: quantity must be >= 1", market.ErrInvalidArgument)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $1 AND user_id = $2`,
		lineID, userID, qty)
	if err != nil {
		return market.CartLine{}, err
	}
	if ct.RowsAffected() == 0 {
		return market.CartLine{}, market.ErrNotFound
	}
	return r.line(ctx, lineID)
}

func (r *CartRepo) Remove(ctx context.Context, userID string, lineID int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (r *CartRepo) Clear(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

// Snapshot reads the whole cart in one query so checkout never sees a
// half-updated cart.
func (r *CartRepo) Snapshot(ctx context.Context, userID string) ([]market.CartLine, error) {
	rows, err := r.DB.Query(ctx, `
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

func (r *CartRepo) line(ctx context.Context, lineID int64) (market.CartLine, error) {
	return scanCartLine(r.DB.QueryRow(ctx, `
		SELECT `+cartLineCols+`
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.id = $1`, lineID))
}

func (r *CartRepo) lineTx(ctx context.Context, tx pgx.Tx, lineID int64) (market.CartLine, error) {
	return scanCartLine(tx.QueryRow(ctx, `
		SELECT `+cartLineCols+`
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.id = $1`, lineID))
}

func scanCartLine(row pgx.Row) (market.CartLine, error) {
	var l market.CartLine
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.ProductName, &l.FarmerID,
		&l.UnitPrice, &l.Unit, &l.Qty, &l.Stock, &l.IsActive, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.CartLine{}, market.ErrNotFound
	}
	return l, err
}

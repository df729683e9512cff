package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type ProductRepo struct{ DB *pgxpool.Pool }

const productCols = `id, farmer_id, category_id, name, description, price, unit, stock, is_active, created_at, updated_at`

type ProductFilters struct {
	CategoryID int64
	FarmerID   int64
	Search     string
}

type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Unit        *string
	Stock       *int
	CategoryID  *int64
}

func (r *ProductRepo) Product(ctx context.Context, id int64) (market.Product, error) {
	return scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
}

func (r *ProductRepo) List(ctx context.Context, f ProductFilters) ([]market.Product, error) {
	q := `SELECT ` + productCols + ` FROM products WHERE is_active`
	var args []any
	if f.CategoryID != 0 {
		args = append(args, f.CategoryID)
		q += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if f.FarmerID != 0 {
		args = append(args, f.FarmerID)
		q += fmt.Sprintf(" AND farmer_id = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		q += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	q += " ORDER BY name"

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProductRepo) Create(ctx context.Context, p market.Product) (market.Product, error) {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(farmer_id, category_id, name, description, price, unit, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING id, is_active, created_at, updated_at`,
		p.FarmerID, p.CategoryID, p.Name, p.Description, p.Price, p.Unit, p.Stock,
	).Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProductRepo) Update(ctx context.Context, id int64, u ProductUpdate) (market.Product, error) {
	q := `UPDATE products SET updated_at = now()`
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		q += fmt.Sprintf(", %s = $%d", col, len(args))
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Price != nil {
		set("price", *u.Price)
	}
	if u.Unit != nil {
		set("unit", *u.Unit)
	}
	if u.Stock != nil {
		set("stock", *u.Stock)
	}
	if u.CategoryID != nil {
		set("category_id", *u.CategoryID)
	}
	args = append(args, id)
	q += fmt.Sprintf(" WHERE id = $%d RETURNING %s", len(args), productCols)

	return scanProduct(r.DB.QueryRow(ctx, q, args...))
}

// Deactivate soft-deletes: historical order items keep referencing the row.
func (r *ProductRepo) Deactivate(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (market.Product, error) {
	var p market.Product
	err := row.Scan(&p.ID, &p.FarmerID, &p.CategoryID, &p.Name, &p.Description,
		&p.Price, &p.Unit, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Product{}, market.ErrNotFound
	}
	return p, err
}

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type CategoryRepo struct{ DB *pgxpool.Pool }

func (r *CategoryRepo) List(ctx context.Context) ([]market.Category, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Category
	for rows.Next() {
		var c market.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) Create(ctx context.Context, name, description string) (market.Category, error) {
	c := market.Category{Name: name, Description: description}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO categories(name, description) VALUES ($1, $2) RETURNING id`,
		name, description,
	).Scan(&c.ID)
	return c, err
}

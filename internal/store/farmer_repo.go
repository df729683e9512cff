package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type FarmerRepo struct{ DB *pgxpool.Pool }

func (r *FarmerRepo) Create(ctx context.Context, userID, farmName, county string) (market.Farmer, error) {
	f := market.Farmer{UserID: userID, FarmName: farmName, County: county}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO farmers(user_id, farm_name, county)
		VALUES ($1, $2, $3)
		RETURNING id, verified, created_at`,
		userID, farmName, county,
	).Scan(&f.ID, &f.Verified, &f.CreatedAt)
	return f, err
}

func (r *FarmerRepo) ByUserID(ctx context.Context, userID string) (market.Farmer, error) {
	var f market.Farmer
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, farm_name, county, verified, created_at
		FROM farmers WHERE user_id = $1`, userID,
	).Scan(&f.ID, &f.UserID, &f.FarmName, &f.County, &f.Verified, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Farmer{}, market.ErrNotFound
	}
	return f, err
}

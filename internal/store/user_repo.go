package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

type UserRepo struct{ DB *pgxpool.Pool }

var ErrEmailTaken = errors.New("email already registered")

func (r *UserRepo) Create(ctx context.Context, email, passwordHash, firstName, lastName, phone string, role market.Role) (market.User, error) {
	u := market.User{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		Role:      role,
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users(id, email, password, first_name, last_name, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		u.ID, email, passwordHash, firstName, lastName, role, phone,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return market.User{}, ErrEmailTaken
		}
		return market.User{}, err
	}
	return u, nil
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (market.User, error) {
	return r.scanOne(r.DB.QueryRow(ctx, `
		SELECT id, email, password, first_name, last_name, role, phone, created_at
		FROM users WHERE email = $1`, email))
}

func (r *UserRepo) ByID(ctx context.Context, id string) (market.User, error) {
	return r.scanOne(r.DB.QueryRow(ctx, `
		SELECT id, email, password, first_name, last_name, role, phone, created_at
		FROM users WHERE id = $1`, id))
}

func (r *UserRepo) scanOne(row pgx.Row) (market.User, error) {
	var u market.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.User{}, market.ErrNotFound
	}
	return u, err
}

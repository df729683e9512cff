package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dnjuguna/mkulima-market/internal/market"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// Identity is the request-scoped authenticated principal. Handlers read it
// from the context instead of any session object.
type Identity struct {
	UserID string
	Role   market.Role
}

type UserStore interface {
	Create(ctx context.Context, email, passwordHash, firstName, lastName, phone string, role market.Role) (market.User, error)
	ByEmail(ctx context.Context, email string) (market.User, error)
	ByID(ctx context.Context, id string) (market.User, error)
}

type FarmerStore interface {
	Create(ctx context.Context, userID, farmName, county string) (market.Farmer, error)
}

// SessionStore maps bearer tokens to user ids with a TTL (redis-backed in
// production).
type SessionStore interface {
	Put(ctx context.Context, token, userID string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
	Del(ctx context.Context, token string) error
}

type Service struct {
	Users    UserStore
	Farmers  FarmerStore
	Sessions SessionStore
	TTL      time.Duration
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      market.Role
	FarmName  string
	County    string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (market.User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return market.User{}, "", fmt.Errorf("%w: invalid email", market.ErrInvalidArgument)
	}
	if len(in.Password) < 8 {
		return market.User{}, "", fmt.Errorf("%w: password must be at least 8 characters", market.ErrInvalidArgument)
	}
	switch in.Role {
	case "":
		in.Role = market.RoleConsumer
	case market.RoleConsumer, market.RoleFarmer:
	default:
		// admin accounts are provisioned out of band
		return market.User{}, "", fmt.Errorf("%w: invalid role", market.ErrInvalidArgument)
	}
	if in.Role == market.RoleFarmer && in.FarmName == "" {
		return market.User{}, "", fmt.Errorf("%w: farm_name required for farmer accounts", market.ErrInvalidArgument)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return market.User{}, "", err
	}
	u, err := s.Users.Create(ctx, in.Email, string(hash), in.FirstName, in.LastName, in.Phone, in.Role)
	if err != nil {
		return market.User{}, "", err
	}
	if in.Role == market.RoleFarmer {
		if _, err := s.Farmers.Create(ctx, u.ID, in.FarmName, in.County); err != nil {
			return market.User{}, "", err
		}
	}

	token, err := s.issue(ctx, u.ID)
	return u, token, err
}

func (s *Service) Login(ctx context.Context, email, password string) (market.User, string, error) {
	u, err := s.Users.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, market.ErrNotFound) {
		return market.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return market.User{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return market.User{}, "", ErrInvalidCredentials
	}
	token, err := s.issue(ctx, u.ID)
	return u, token, err
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.Del(ctx, token)
}

// Resolve turns a bearer token into an Identity.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	userID, err := s.Sessions.Get(ctx, token)
	if err != nil || userID == "" {
		return Identity{}, ErrInvalidCredentials
	}
	u, err := s.Users.ByID(ctx, userID)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: u.ID, Role: u.Role}, nil
}

func (s *Service) User(ctx context.Context, id string) (market.User, error) {
	return s.Users.ByID(ctx, id)
}

func (s *Service) issue(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.Sessions.Put(ctx, token, userID, s.TTL); err != nil {
		return "", err
	}
	return token, nil
}

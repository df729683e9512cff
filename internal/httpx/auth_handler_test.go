package httpx_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnjuguna/mkulima-market/internal/auth"
	"github.com/dnjuguna/mkulima-market/internal/httpx"
	"github.com/dnjuguna/mkulima-market/internal/market"
)

type memUsers struct {
	byEmail map[string]market.User
	byID    map[string]market.User
	nextID  int
}

func (m *memUsers) Create(_ context.Context, email, hash, first, last, phone string, role market.Role) (market.User, error) {
	m.nextID++
	u := market.User{
		ID: fmt.Sprintf("u-%d", m.nextID), Email: email, PasswordHash: hash,
		FirstName: first, LastName: last, Phone: phone, Role: role,
	}
	m.byEmail[email] = u
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsers) ByEmail(_ context.Context, email string) (market.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return market.User{}, market.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) ByID(_ context.Context, id string) (market.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return market.User{}, market.ErrNotFound
	}
	return u, nil
}

type memFarmers struct{ created []market.Farmer }

func (m *memFarmers) Create(_ context.Context, userID, farmName, county string) (market.Farmer, error) {
	f := market.Farmer{ID: int64(len(m.created) + 1), UserID: userID, FarmName: farmName, County: county}
	m.created = append(m.created, f)
	return f, nil
}

type memSessions struct{ tokens map[string]string }

func (m *memSessions) Put(_ context.Context, token, userID string, _ time.Duration) error {
	m.tokens[token] = userID
	return nil
}
func (m *memSessions) Get(_ context.Context, token string) (string, error) {
	return m.tokens[token], nil
}
func (m *memSessions) Del(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

// authRouter wires the real auth middleware in front of the handlers, so
// these tests cover the full bearer-token round trip.
func authRouter() *chi.Mux {
	svc := &auth.Service{
		Users:    &memUsers{byEmail: map[string]market.User{}, byID: map[string]market.User{}},
		Farmers:  &memFarmers{},
		Sessions: &memSessions{tokens: map[string]string{}},
		TTL:      time.Hour,
	}
	r := chi.NewRouter()
	r.Use(auth.Middleware(svc))
	(&httpx.AuthHandler{Auth: svc}).Register(r)
	return r
}

func bearer(t *testing.T, r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	r := authRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"email": "jane@example.com", "password": "longenough", "first_name": "Jane",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[struct {
		Token string      `json:"token"`
		User  market.User `json:"user"`
	}](t, rec)
	require.NotEmpty(t, created.Token)
	assert.Equal(t, market.RoleConsumer, created.User.Role)

	// the token from register works immediately
	rec = bearer(t, r, http.MethodGet, "/api/auth/user", created.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jane@example.com", decodeBody[market.User](t, rec).Email)

	rec = doJSON(t, r, http.MethodPost, "/api/auth/login", nil, map[string]any{
		"email": "jane@example.com", "password": "longenough",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	r := authRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"email": "jane@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"email": "jane@example.com", "password": "longenough", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	r := authRouter()
	doJSON(t, r, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"email": "jane@example.com", "password": "longenough",
	})

	rec := doJSON(t, r, http.MethodPost, "/api/auth/login", nil, map[string]any{
		"email": "jane@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutKillsSession(t *testing.T) {
	r := authRouter()
	rec := doJSON(t, r, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"email": "jane@example.com", "password": "longenough",
	})
	token := decodeBody[struct {
		Token string `json:"token"`
	}](t, rec).Token

	rec = bearer(t, r, http.MethodPost, "/api/auth/logout", token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = bearer(t, r, http.MethodGet, "/api/auth/user", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUserWithoutToken(t *testing.T) {
	r := authRouter()
	rec := bearer(t, r, http.MethodGet, "/api/auth/user", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

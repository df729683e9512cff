package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey struct{}

// IdentityFrom returns the authenticated identity set by Middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Middleware resolves "Authorization: Bearer <token>" and stores the
// Identity in the request context. Requests without a valid token pass
// through unauthenticated; handlers decide whether that is acceptable.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(h, "Bearer "); ok {
				if id, err := svc.Resolve(r.Context(), token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id scheduling.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity placed on ctx by Middleware.
func IdentityFrom(ctx context.Context) (scheduling.Identity, bool) {
	id, ok := ctx.Value(identityKey).(scheduling.Identity)
	return id, ok
}

// Middleware rejects requests without a valid bearer token.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			id, err := v.Verify(raw)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"details": details,
	})
}

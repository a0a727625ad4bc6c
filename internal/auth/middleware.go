package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dorianinnovations/Server/internal/apperr"
)

type contextKey string

const userContextKey contextKey = "user"

// Middleware extracts and validates the bearer token on protected routes.
type Middleware struct {
	jwtManager *JWTManager
}

func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Require wraps a handler so it only runs for requests carrying a valid
// access token, injecting the resolved UserContext.
func (m *Middleware) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		userCtx, err := m.jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, userCtx)
		next(w, r.WithContext(ctx))
	}
}

// FromContext returns the UserContext injected by Require.
func FromContext(ctx context.Context) (*UserContext, bool) {
	uc, ok := ctx.Value(userContextKey).(*UserContext)
	return uc, ok
}

// WithUserContext injects a UserContext directly, for handlers composed
// behind something other than Require (tests, internal dispatch).
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.KindUnauthorized.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"kind":    string(apperr.KindUnauthorized),
			"message": message,
		},
	})
}

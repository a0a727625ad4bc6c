package httpapi

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/auth"
	"github.com/dorianinnovations/Server/internal/ratelimit"
)

// Handlers bundles every handler group the router wires together. Built up
// in cmd/server/main.go and handed to NewRouter as one unit.
type Handlers struct {
	Auth       *AuthHandlers
	Completion *CompletionHandlers
	Health     *HealthHandlers
	Profile    *ProfileHandlers
	Emotion    *EmotionHandlers
	Tasks      *TaskHandlers
}

// NewRouter assembles the full HTTP surface, matching the route table in
// spec.md §6: /health, /signup, /login and /refresh skip auth; the other
// routes require a bearer access token validated by auth.Middleware. Every route except /health and
// /completion is wrapped in the general rate-limit window (spec.md §4.9);
// /completion enforces it already, combined with its own tighter window,
// through CompletionHandlers' AllowCompletion call.
func NewRouter(h Handlers, authMw *auth.Middleware, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.Health)

	mux.Handle("POST /signup", generalLimit(limiter, h.Auth.Signup))
	mux.Handle("POST /login", generalLimit(limiter, h.Auth.Login))
	mux.Handle("POST /refresh", generalLimit(limiter, h.Auth.Refresh))

	mux.Handle("POST /completion", authMw.Require(h.Completion.Complete))
	mux.Handle("GET /profile", generalLimit(limiter, authMw.Require(h.Profile.Get)))
	mux.Handle("POST /emotions", generalLimit(limiter, authMw.Require(h.Emotion.Log)))
	mux.Handle("GET /run-tasks", generalLimit(limiter, authMw.Require(h.Tasks.RunOnce)))

	return withCORS(mux)
}

// generalLimit enforces the general rate-limit window (spec.md §4.9) ahead
// of next, keyed by client IP: it sits in front of the mux dispatch the way
// spec.md §2's pipeline diagram places the rate limiter ahead of auth, so no
// authenticated user id is available yet here.
func generalLimit(limiter *ratelimit.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := ratelimit.Identity(r, "")
		if !limiter.Allow(identity) {
			writeError(w, apperr.New(apperr.KindRateLimited, "rate limit exceeded"))
			return
		}
		next(w, r)
	}
}

// withCORS is development-friendly CORS for the gateway's routes, including
// the SSE streaming path (POST /completion), which needs the same headers as
// any other route.
func withCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}

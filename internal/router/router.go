// Package router sets up all HTTP routes and middleware chains for the
// gardenfeed API. Feed routes are open to anonymous callers; the feed store
// itself decides which operations need a signed-in viewer.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"gardenfeed/internal/handlers"
	"gardenfeed/internal/middleware"
)

// Deps holds what the router wires together.
type Deps struct {
	Sessions      middleware.SessionLoader
	Tokens        middleware.TokenVerifier
	Auth          *handlers.Auth
	Feed          *handlers.Feed
	AuthLimiter   *middleware.RateLimiter // applied to login and register
	SecureCookies bool
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	// Health check: no identity, no CSRF.
	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SecureHeaders)
		r.Use(middleware.LoadIdentity(d.Sessions, d.Tokens))
		r.Use(middleware.NewCSRF(d.SecureCookies))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if d.AuthLimiter != nil {
					r.Use(d.AuthLimiter.Middleware)
				}
				r.Post("/register", d.Auth.Register)
				r.Post("/login", d.Auth.Login)
			})
			r.Post("/logout", d.Auth.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/me", d.Auth.Me)
				r.Post("/2fa/setup", d.Auth.TwoFASetup)
				r.Post("/2fa/enable", d.Auth.TwoFAEnable)
			})
		})

		r.Get("/feed", d.Feed.List)
		r.Post("/posts", d.Feed.CreatePost)
		r.Route("/posts/{id}", func(r chi.Router) {
			r.Post("/like", d.Feed.ToggleLike)
			r.Put("/like", d.Feed.Like)
			r.Delete("/like", d.Feed.Unlike)
			r.Post("/share", d.Feed.Share)
			r.Get("/comments", d.Feed.Comments)
			r.Post("/comments", d.Feed.AddComment)
		})

		r.Get("/notices", d.Feed.Notices)
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

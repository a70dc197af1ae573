// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gardenfeed/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// IdentityKey is the context key for the resolved caller identity.
	IdentityKey contextKey = "identity"
)

// Identity is the signed-in caller, resolved from either the session
// cookie or a bearer token.
type Identity struct {
	UserID      uuid.UUID
	DisplayName string
	Email       string
	SessionID   string // empty for bearer requests
	Bearer      bool
}

// SessionLoader reads the session behind a request's cookie.
type SessionLoader interface {
	Get(ctx context.Context, r *http.Request) (*session.Data, error)
}

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, string, error)
}

// LoadIdentity resolves the caller and stores it in the request context.
// A bearer token takes precedence over the cookie; an invalid token is
// rejected with 401. A missing or broken session leaves the request
// anonymous. It does NOT enforce authentication.
func LoadIdentity(sessions SessionLoader, tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				id, name, err := tokens.Verify(token)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "Invalid or expired token.")
					return
				}
				ident := &Identity{UserID: id, DisplayName: name, Bearer: true}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), IdentityKey, ident)))
				return
			}

			data, err := sessions.Get(r.Context(), r)
			if err != nil {
				slog.Warn("session load failed", "error", err)
			}
			if data != nil {
				ident := &Identity{
					UserID:      data.UserID,
					DisplayName: data.DisplayName,
					Email:       data.Email,
					SessionID:   data.ID,
				}
				r = r.WithContext(context.WithValue(r.Context(), IdentityKey, ident))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth answers 401 for anonymous callers. Must be applied after
// LoadIdentity in the middleware chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromCtx(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Please sign in to continue.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromCtx extracts the caller identity from the request context.
// Returns nil if the caller is anonymous.
func IdentityFromCtx(ctx context.Context) *Identity {
	ident, _ := ctx.Value(IdentityKey).(*Identity)
	return ident
}

// bearerToken returns the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mkarimof/filedepot/internal/api"
	"github.com/mkarimof/filedepot/internal/appctx"
	"github.com/mkarimof/filedepot/internal/identity"
	"github.com/mkarimof/filedepot/internal/store"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	userContextKey    contextKey = "user"
)

// AuthGateConfig configures the authentication middleware.
type AuthGateConfig struct {
	// RequireAuth decides whether a request needs a valid session.
	// Public requests (login, share links, health) return false.
	RequireAuth func(r *http.Request) bool

	Sessions identity.SessionRepo
	Users    store.UserStore
}

// NewAuthGate returns a middleware that resolves the session token into a
// session and user, attaching both to the request context. Requests to
// protected paths without a valid session are rejected with a JSON 401.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractSessionToken(r)
			required := cfg.RequireAuth != nil && cfg.RequireAuth(r)

			if token == "" {
				if required {
					api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			session, err := cfg.Sessions.Get(ctx, token)
			if err != nil {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				if errors.Is(err, identity.ErrSessionExpired) {
					api.WriteUnauthorized(w, api.ReasonSessionExpired, "session expired")
					return
				}
				api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid session")
				return
			}

			user, err := cfg.Users.GetUser(ctx, session.UserID)
			if err != nil {
				if required {
					api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid session")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, userContextKey, user)
			ctx = appctx.WithLogger(ctx, appctx.GetLogger(ctx).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionToken pulls the session token from the "session" cookie or,
// failing that, an Authorization bearer header.
func extractSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// GetUserFromContext returns the authenticated user, if any.
func GetUserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok
}

// GetSessionFromContext returns the active session, if any.
func GetSessionFromContext(ctx context.Context) (*identity.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*identity.Session)
	return s, ok
}

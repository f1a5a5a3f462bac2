package httpx

import (
	"context"
	"net/http"

	"github.com/woolstore/storefront/internal/apperr"
	"github.com/woolstore/storefront/internal/auth"
	"github.com/woolstore/storefront/internal/session"
)

const SessionCookie = "session_token"

type ctxKey int

const sessionKey ctxKey = iota

// Sessions abstracts token resolution for the middleware; satisfied by
// *auth.Authenticator.
type Sessions interface {
	Resolve(ctx context.Context, token string) (session.Session, bool)
}

// WithSession resolves the session cookie into the request context.
// Requests without a valid session pass through; route-level guards
// decide whether that matters.
func WithSession(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(SessionCookie); err == nil {
				if s, ok := sessions.Resolve(r.Context(), c.Value); ok {
					r = r.WithContext(context.WithValue(r.Context(), sessionKey, s))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SessionFrom(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(session.Session)
	return s, ok
}

// Missing, expired and insufficient-role sessions all answer 401 with
// the same body; callers cannot probe which case they hit.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFrom(r.Context()); !ok {
			writeErr(w, apperr.New(apperr.KindUnauthenticated, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFrom(r.Context())
		if !ok || s.Role != auth.RoleAdmin {
			writeErr(w, apperr.New(apperr.KindUnauthenticated, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

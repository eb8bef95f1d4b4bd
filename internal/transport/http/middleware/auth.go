package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/youme-api/internal/domain"
	jwtinfra "github.com/youme-api/internal/infrastructure/jwt"
)

type contextKey string

const (
	ClaimsKey  contextKey = "claims"
	SessionKey contextKey = "session"
)

type tokenVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

type sessionLoader interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Auth returns middleware that validates the Bearer JWT and injects claims into context.
func Auth(provider tokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := provider.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Session loads the server-side session named by the token's claims. It
// must run after Auth. A session that was signed out or expired is a 401.
func Session(store sessionLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			sess, err := store.Get(r.Context(), claims.SessionID)
			if errors.Is(err, domain.ErrUnauthorized) {
				writeJSONError(w, http.StatusUnauthorized, "session expired")
				return
			}
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "session lookup failed")
				return
			}
			if sess.Identity == nil || sess.Identity.UserID != claims.UserID {
				writeJSONError(w, http.StatusUnauthorized, "session does not match token")
				return
			}
			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireVerified rejects sessions whose email address is not verified yet.
// It must run after Session.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || sess.Identity == nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !sess.Identity.EmailVerified {
			writeJSONError(w, http.StatusForbidden, "Please verify your email to continue")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*jwtinfra.Claims)
	return c, ok
}

// SessionFromContext returns the session loaded by the Session middleware.
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok
}

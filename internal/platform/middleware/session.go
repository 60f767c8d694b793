package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "enroll/pkg/domain"
	"enroll/pkg/requestcontext"
)

// SessionValidator validates an application session token and returns its
// claims. Implemented by internal/session.
type SessionValidator interface {
	Validate(token string) (*SessionClaims, error)
}

// SessionClaims is the subset of session state the middleware propagates.
type SessionClaims struct {
	UserID         id.UserID
	EmailVerified  bool
	PhoneVerified  bool
	OnboardingStep string
}

type sessionClaimsKey struct{}

// GetSessionClaims retrieves validated session claims from the context, or
// nil when the request was anonymous.
func GetSessionClaims(ctx context.Context) *SessionClaims {
	if c, ok := ctx.Value(sessionClaimsKey{}).(*SessionClaims); ok {
		return c
	}
	return nil
}

// WithSessionClaims injects session claims into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithSessionClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsKey{}, claims)
}

// OptionalSession validates a bearer token when one is present and attaches
// its claims; anonymous requests pass through untouched. Registration entry
// resolution needs session status when it exists but must work without it —
// most of the flow runs before any session exists at all.
func OptionalSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				// An expired or garbled session token is not fatal here; the
				// flow just resolves as unauthenticated.
				logger.WarnContext(r.Context(), "ignoring invalid session token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithSessionClaims(r.Context(), claims)
			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

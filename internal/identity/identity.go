// Package identity binds a verified user identity to each HTTP request.
package identity

import (
	"context"
	"net"
	"net/http"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/session"
)

type contextKey int

const userIDKey contextKey = iota

// WithUserID returns a copy of ctx carrying the authenticated user.
func WithUserID(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext extracts the authenticated user from the request context.
// It returns 0 when the request was not authenticated.
func UserIDFromContext(ctx context.Context) domain.UserID {
	if v, ok := ctx.Value(userIDKey).(domain.UserID); ok {
		return v
	}
	return 0
}

// Middleware verifies the request credential and injects the user id.
// Requests without a valid credential get a 401 and never reach next.
func Middleware(verifier session.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := verifier.Verify(r.Context(), session.CredentialFromRequest(r))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="pairchat"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

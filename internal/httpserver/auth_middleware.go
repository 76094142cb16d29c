package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chatrelay/internal/domain"
	"chatrelay/internal/ws"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches the user to the context.
func AuthMiddleware(auth ws.Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			user, err := auth.Authenticate(r.Context(), tokenStr)
			if errors.Is(err, domain.ErrUnauthorized) {
				log.Debug("auth middleware: rejected", zap.Error(err))
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			if err != nil {
				log.Error("auth middleware: authenticate", zap.Error(err))
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalTokenMiddleware admits service-to-service calls carrying the shared
// secret in X-Internal-Token. With no secret configured every call is refused.
func InternalTokenMiddleware(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-Internal-Token"))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package middleware carries the HTTP middleware: caller resolution and
// transport-level rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driveline/platform/pkg/logger"
)

type contextKey string

const callerKey contextKey = "caller_id"

// CallerFrom returns the resolved caller id, empty when the request is
// anonymous.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

// WithCaller attaches a caller id to the context. Exported for tests and for
// internal dispatch paths that already know the principal.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerKey, callerID)
}

// Auth resolves the bearer token into a caller identity. Resolution only: a
// missing or invalid token leaves the request anonymous, and routes that
// require identity reject it downstream.
func Auth(secret []byte, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				log.WithError(err).Debug("rejected bearer token")
				next.ServeHTTP(w, r)
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), sub)))
		})
	}
}

package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type userKey struct{}

// BearerAuth authenticates requests against the configured token→user map
// and stores the acting user in the request context.  Comparison is
// constant-time per candidate token.
func BearerAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			presented := []byte(auth[len(prefix):])

			for token, user := range tokens {
				if subtle.ConstantTimeCompare(presented, []byte(token)) == 1 {
					ctx := context.WithValue(r.Context(), userKey{}, user)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
		})
	}
}

// actingUser returns the authenticated user stored by BearerAuth.
func actingUser(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

package auth

import (
	"context"
	"net/http"
)

type contextKey struct{}

var claimsContextKey contextKey

// ClaimsFromContext returns the authenticated claims placed on the request
// context by Middleware. The second return is false outside an
// authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}

// Middleware guards authenticated routes. Every presented token runs the
// full check (signature, expiry, revocation) through the session service;
// the authenticated claims travel on the request context, never in a
// process-wide variable.
func Middleware(service *Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: StatusUnauthorized, Message: reauthenticateMessage})
			return
		}

		claims, err := service.Authenticate(r.Context(), token)
		if err != nil {
			// A store that cannot answer denies the request the same way an
			// invalid token does; nothing authenticates by default.
			writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: StatusUnauthorized, Message: reauthenticateMessage})
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

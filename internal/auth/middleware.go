package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the account ID stored in the request context.
type contextKey string

const accountIDKey contextKey = "accountID"

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// It reads the session JWT from the "token" HttpOnly cookie (or, for
// non-browser clients, an "Authorization: Bearer" header), validates it, and
// stores the account ID in the request context. If the token is missing or
// invalid it returns 401 Unauthorized and stops the request chain.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := extractAccountID(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext retrieves the authenticated account's ID from the
// request context. Returns ("", false) if the request is anonymous.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// extractAccountID finds the session token on the request and validates it.
// Cookie first (browser flow), then the Authorization header.
func extractAccountID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie("token"); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	token, _ := strings.CutPrefix(header, "Bearer ")
	return tokens.Validate(token)
}

package middleware

import (
	"net/http"
	"strings"

	internaljwt "messaging-client/internal/jwt"
)

// ValidateBridgeToken rejects requests without a valid HS256 bearer token
// signed with secret. An empty secret disables the check.
func ValidateBridgeToken(secret string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// ParseToken checks exp as part of validation.
			if _, err := internaljwt.ParseToken(tokenString, secret); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next(w, r)
		}
	}
}

// bearerToken reads the Authorization header, or the access_token query
// parameter for websocket upgrades that cannot set headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
			return h[len("Bearer "):]
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

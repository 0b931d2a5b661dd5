package web

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuthMiddleware guards the API with a single bearer token whose
// bcrypt hash is configured at startup. An empty hash disables auth,
// which is the expected mode on an isolated edge network.
func TokenAuthMiddleware(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Fallback for websocket clients that cannot set headers.
	return r.URL.Query().Get("token")
}

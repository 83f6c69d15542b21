package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth rejects requests without the configured token. Event-stream
// requests may pass it as the access_token query parameter, since browser
// EventSource clients cannot set headers.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validToken(r, token) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	const prefix = "Bearer "
	presented := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		presented = auth[len(prefix):]
	} else if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		presented = r.URL.Query().Get("access_token")
	}
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

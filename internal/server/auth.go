package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAdmin rejects requests whose Authorization header does not carry
// the configured admin token. An unset token disables writes entirely.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			s.respondError(w, http.StatusUnauthorized, "writes are disabled")
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

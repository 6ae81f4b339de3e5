package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// adminAuth guards the admin routes with the configured bearer token. An
// unset token disables the admin surface entirely.
func (s *server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "admin endpoints are disabled"})
			return
		}
		if !validBearer(r.Header.Get("Authorization"), s.adminToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "invalid admin token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validBearer(header, token string) bool {
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}
	provided := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}

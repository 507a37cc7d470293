package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerAuth admits requests carrying one of tokens as a Bearer token.
func bearerAuth(tokens []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			valid = append(valid, []byte(t))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !authorized(req.Header.Get("Authorization"), valid) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="mass-mailer"`)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func authorized(header string, valid [][]byte) bool {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	got := []byte(strings.TrimSpace(header[len(prefix):]))
	ok := false
	for _, v := range valid {
		if subtle.ConstantTimeCompare(got, v) == 1 {
			ok = true
		}
	}
	return ok
}

package middlewarex

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"paygate/internal/http/respond"
)

// APIKeyAuth admits requests whose bearer token matches apiKey. An empty
// apiKey rejects everything.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(apiKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				unauthorized(w, "api key is not configured")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing bearer")
				return
			}
			got := sha256.Sum256([]byte(strings.TrimPrefix(auth, "Bearer ")))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				unauthorized(w, "invalid key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	respond.JSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]string{"kind": "unauthorized", "message": msg},
	})
}

package middleware

import (
	"net/http"

	"github.com/stacyai/kiosk-agent-go/internal/config"
)

// BodyLimit rejects oversized request bodies before the handler reads them
// and caps the reader on everything else. One shared limit covers all kiosk
// routes; see config.MaxRequestBodySize.
func BodyLimit(maxSize int64) func(http.Handler) http.Handler {
	if maxSize <= 0 {
		maxSize = config.MaxRequestBodySize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxSize {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": "Request body too large",
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}

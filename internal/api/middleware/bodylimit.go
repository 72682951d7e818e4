package middleware

import (
	"net/http"

	"parss/internal/api"
)

// MaxBodySize caps request bodies at limit bytes. A declared Content-Length
// over the cap is refused with 413 up front; bodies of unknown length fail on
// read once the cap is crossed.
func MaxBodySize(limit int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > limit {
				api.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

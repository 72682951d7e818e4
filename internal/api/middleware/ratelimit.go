package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"parss/internal/api"
	"parss/internal/domain"
	"parss/internal/platform/telemetry"
)

// RateLimit returns middleware that enforces per-IP token bucket limits.
// The metrics parameter is optional; pass nil to skip metric recording.
func RateLimit(limiter api.RateLimiter, m *telemetry.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if result := limiter.Allow(clientIP(r)); !result.Allowed {
				m.RecordRateLimitDecision(r.Context(), "ip", telemetry.ResultDenied)
				writeRateLimitError(w, result.RetryAfter)
				return
			}
			m.RecordRateLimitDecision(r.Context(), "ip", telemetry.ResultAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// Throttle returns a fixed-window per-IP limiter for credential endpoints
// (login, register, refresh), where the global bucket is too generous for
// password guessing.
func Throttle(limit int, window time.Duration, layer string, m *telemetry.Metrics) Middleware {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			m.RecordRateLimitDecision(r.Context(), layer, telemetry.ResultDenied)
			retryAfter := int(math.Ceil(window.Seconds()))
			if v, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil && v > 0 {
				retryAfter = v
			}
			writeRateLimitError(w, retryAfter)
		}),
	)
}

func clientIP(r *http.Request) string {
	// Use RemoteAddr directly. X-Forwarded-For is client-controlled and
	// must not be trusted without a validated trusted proxy list.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitError(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	api.WriteJSON(w, http.StatusTooManyRequests, domain.ErrorResponse{
		Error:      "rate_limited",
		Message:    "too many requests",
		RetryAfter: retryAfter,
	})
}

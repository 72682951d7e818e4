package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"parss/internal/api"
)

// Logging writes one access log line per request. Guard denials are logged at
// warn so they stand out from ordinary traffic. It must wrap Authenticate so
// the principal resolved further in can be reported.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &api.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
			info := &requestInfo{}

			next.ServeHTTP(sw, r.WithContext(withRequestInfo(r.Context(), info)))

			logger.LogAttrs(r.Context(), levelFor(sw.Code), "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.Code),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("request_id", api.RequestIDFromContext(r.Context())),
				slog.String("principal_id", info.principalID),
				slog.String("role", string(info.role)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

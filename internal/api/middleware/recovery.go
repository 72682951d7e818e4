package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"parss/internal/api"
)

// Recovery turns a handler panic into a 500 error response. If the handler
// already started the response only the log entry is written.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				attrs := []any{
					"panic", fmt.Sprint(v),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", api.RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()),
				}
				if info := requestInfoFrom(r.Context()); info != nil && info.principalID != "" {
					attrs = append(attrs, "principal_id", info.principalID)
				}
				logger.ErrorContext(r.Context(), "handler panicked", attrs...)

				if tw.started {
					return
				}
				api.WriteError(tw, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

type trackingWriter struct {
	http.ResponseWriter
	started bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.started = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.started = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

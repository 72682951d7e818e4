package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"parss/internal/api"
	"parss/internal/domain"
	"parss/internal/platform/telemetry"
)

// Authenticate returns a middleware that validates Bearer access tokens and
// places the verified token and its principal in the request context.
// Paths in publicPaths are exempt from authentication.
// The metrics parameter is optional; pass nil to skip metric recording.
func Authenticate(v api.TokenVerifier, publicPaths []string, m *telemetry.Metrics) Middleware {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := api.BearerToken(r)
			if !ok {
				m.RecordAuthValidation(r.Context(), telemetry.ResultFailure)
				api.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed authorization header")
				return
			}

			tok, err := v.Verify(r.Context(), raw)
			if err != nil {
				slog.Debug("auth validation failed", "error", err, "request_id", api.RequestIDFromContext(r.Context()))
				m.RecordAuthValidation(r.Context(), telemetry.ResultFailure)
				msg := "invalid or expired token"
				if errors.Is(err, domain.ErrTokenExpired) {
					msg = "token expired"
				}
				api.WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
				return
			}

			m.RecordAuthValidation(r.Context(), telemetry.ResultSuccess)
			recordPrincipal(r.Context(), tok.Principal)
			next.ServeHTTP(w, r.WithContext(api.ContextWithToken(r.Context(), tok)))
		})
	}
}

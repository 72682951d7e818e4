package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"parss/internal/api"
	"parss/internal/authz"
	"parss/internal/platform/telemetry"
)

// Middleware wraps an http.Handler. It is interchangeable with chi middleware.
type Middleware = func(http.Handler) http.Handler

// Chain applies middleware in order: the first middleware is the outermost wrapper.
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	return chi.Chain(mw...).Handler(handler)
}

// Protect guards handler for a service that accepts this issuer's tokens
// without running the full router: the bearer token is verified, then req is
// evaluated against t.
func Protect(handler http.Handler, v api.TokenVerifier, t *authz.Table, m *telemetry.Metrics, req authz.Requirement) http.Handler {
	return Chain(handler, Authenticate(v, nil, m), Require(t, m, req))
}

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"parss/internal/api"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/platform/telemetry"
)

// Require returns a guard that admits the request only when the principal
// placed by Authenticate satisfies req. No principal yields 401, a denial 403.
func Require(t *authz.Table, m *telemetry.Metrics, req authz.Requirement) Middleware {
	kind := requirementKind(req)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := api.PrincipalFromContext(r.Context())
			if !ok {
				api.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			d := t.Evaluate(&p, req)
			m.RecordAuthzDecision(r.Context(), kind, d.Allowed)
			if !d.Allowed {
				slog.Debug("authorization denied",
					"principal_id", p.ID,
					"role", p.Role,
					"reason", d.Reason,
					"path", r.URL.Path,
					"request_id", api.RequestIDFromContext(r.Context()),
				)
				api.WriteError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals holding any of perms.
func RequirePermission(t *authz.Table, m *telemetry.Metrics, perms ...domain.Permission) Middleware {
	return Require(t, m, authz.AnyPermission(perms...))
}

// RequireRole admits principals whose role is one of roles.
func RequireRole(t *authz.Table, m *telemetry.Metrics, roles ...domain.Role) Middleware {
	return Require(t, m, authz.AnyRole(roles...))
}

// RequireInstitution admits principals that may act for the institution named
// by the chi URL parameter param.
func RequireInstitution(t *authz.Table, m *telemetry.Metrics, param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := api.PrincipalFromContext(r.Context())
			if !ok {
				api.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			inst := chi.URLParam(r, param)
			allowed := t.CanActFor(&p, inst)
			m.RecordAuthzDecision(r.Context(), "institution", allowed)
			if !allowed {
				slog.Debug("institution access denied", "principal_id", p.ID, "institution", inst)
				api.WriteError(w, http.StatusForbidden, "forbidden", "not affiliated with institution")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requirementKind(req authz.Requirement) string {
	switch {
	case len(req.Roles) > 0 && len(req.Permissions) > 0:
		return "role_permission"
	case len(req.Roles) > 0:
		return "role"
	case len(req.Permissions) > 0:
		return "permission"
	default:
		return "authenticated"
	}
}

// Package handler assembles the HTTP surface of the authorization service:
// credential endpoints under /auth, the guarded collaborator routes under
// /api and the operational endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parss/internal/api"
	"parss/internal/api/middleware"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/platform/telemetry"
	"parss/internal/users"
)

// Accounts is the user directory as seen by the credential endpoints.
type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (users.User, error)
	Register(ctx context.Context, in users.RegisterInput) (users.User, error)
	Lookup(ctx context.Context, id string) (users.User, error)
	Update(ctx context.Context, id string, in users.UpdateInput) (users.User, error)
}

// Credentials mints, rotates and revokes token pairs.
type Credentials interface {
	Issue(ctx context.Context, claims domain.Claims) (domain.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Credential, error)
	Revoke(ctx context.Context, refreshToken string, access api.VerifiedToken) error
}

// Deps holds everything the router needs. Metrics, Limiter and Ready are optional.
type Deps struct {
	Accounts    Accounts
	Credentials Credentials
	Verifier    api.TokenVerifier
	Roles       *authz.Table
	JWKS        http.Handler
	Limiter     api.RateLimiter
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
	Ready       func(ctx context.Context) error

	Development    bool
	AllowedOrigins []string
	MaxBodyBytes   int64
	LoginLimit     int // requests per minute per IP on login, register and refresh
}

const (
	defaultMaxBodyBytes = 1 << 20
	defaultLoginLimit   = 10
)

// New returns the root handler.
func New(d Deps) http.Handler {
	if d.Roles == nil {
		d.Roles = authz.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = defaultMaxBodyBytes
	}
	if d.LoginLimit <= 0 {
		d.LoginLimit = defaultLoginLimit
	}

	h := &handlers{
		accounts: d.Accounts,
		creds:    d.Credentials,
		verifier: d.Verifier,
		roles:    d.Roles,
		ready:    d.Ready,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Metrics(d.Metrics),
		middleware.RequestID,
		middleware.Logging(d.Logger),
		middleware.Recovery(d.Logger),
		middleware.SecureHeaders(d.Development),
		middleware.CORS(d.AllowedOrigins),
		middleware.MaxBodySize(d.MaxBodyBytes),
	)
	if d.Limiter != nil {
		r.Use(middleware.RateLimit(d.Limiter, d.Metrics))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", telemetry.MetricsHandler())
	if d.JWKS != nil {
		r.Method(http.MethodGet, "/.well-known/jwks.json", d.JWKS)
	}

	authenticate := middleware.Authenticate(d.Verifier, nil, d.Metrics)
	perm := func(perms ...domain.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(d.Roles, d.Metrics, perms...)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Throttle(d.LoginLimit, time.Minute, "login", d.Metrics))
			r.Post("/login", h.login)
			r.Post("/register", h.register)
			r.Post("/refresh", h.refresh)
		})
		r.Post("/logout", h.logout)
		r.With(authenticate).Get("/me", h.me)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)
		r.With(perm(authz.PermViewDashboard)).Get("/dashboard", h.dashboard)
		r.With(perm(authz.PermViewAlerts, authz.PermManageAlerts)).Get("/alerts", h.listAlerts)
		r.With(perm(authz.PermManageAlerts)).Post("/alerts", h.accepted("alert"))
		r.With(perm(authz.PermManageFaculty)).Get("/faculty", h.resource("faculty"))
		r.With(perm(authz.PermManageApprovals)).Post("/approvals", h.accepted("approval"))
		r.With(perm(authz.PermGenerateReports)).Post("/reports", h.accepted("report"))
		r.With(
			perm(authz.PermViewDocuments),
			middleware.RequireInstitution(d.Roles, d.Metrics, "institutionID"),
		).Get("/institutions/{institutionID}/documents", h.documents)
		r.With(middleware.RequireRole(d.Roles, d.Metrics, domain.RoleSystemAdmin, domain.RoleSuperAdmin)).
			Get("/system/settings", h.resource("system_settings"))
		r.With(perm(authz.PermViewAuditLogs)).Get("/audit-logs", h.resource("audit_logs"))
		r.With(perm(authz.PermManageUsers)).Patch("/users/{userID}", h.updateUser)
	})

	return r
}

type handlers struct {
	accounts Accounts
	creds    Credentials
	verifier api.TokenVerifier
	roles    *authz.Table
	ready    func(ctx context.Context) error
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			api.WriteError(w, http.StatusServiceUnavailable, "not_ready", "dependencies unavailable")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

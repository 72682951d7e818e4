package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"parss/internal/api/middleware"
	"parss/internal/authz"
	"parss/internal/domain"
	"parss/internal/testutil"
)

func tracing(name string, order *[]string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name+"-before")
			next.ServeHTTP(w, r)
			*order = append(*order, name+"-after")
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	h := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}),
		tracing("outer", &order),
		tracing("inner", &order),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestChainEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	middleware.Chain(testutil.OKHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestProtect(t *testing.T) {
	key := testutil.GenerateTestKeyPair(t)
	h := middleware.Protect(testutil.OKHandler(), testutil.NewValidator(key), authz.Default(), nil,
		authz.AnyPermission(authz.PermManageApprovals))

	principal := testutil.IssueTestToken(t, key, domain.Principal{ID: "p", Role: domain.RolePrincipal}, time.Minute)
	faculty := testutil.IssueTestToken(t, key, domain.Principal{ID: "f", Role: domain.RoleFaculty}, time.Minute)
	expired := testutil.IssueTestToken(t, key, domain.Principal{ID: "s", Role: domain.RoleSuperAdmin}, -time.Minute)

	tests := []struct {
		name   string
		bearer string
		status int
	}{
		{"permitted", principal, http.StatusOK},
		{"denied", faculty, http.StatusForbidden},
		{"expired superuser", expired, http.StatusUnauthorized},
		{"no token", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := do(t, h, "/approvals", tt.bearer); status != tt.status {
				t.Errorf("status = %d (%+v), want %d", status, body, tt.status)
			}
		})
	}
}

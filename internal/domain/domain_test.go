package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"parss/internal/domain"
)

func TestRoleKnown(t *testing.T) {
	for _, r := range domain.KnownRoles {
		if !r.Known() {
			t.Errorf("expected %q to be known", r)
		}
	}
	for _, r := range []domain.Role{"", "root", "Admin", "dean"} {
		if r.Known() {
			t.Errorf("expected %q to be unknown", r)
		}
	}
}

func TestRoleIsSuperUser(t *testing.T) {
	tests := []struct {
		role domain.Role
		want bool
	}{
		{domain.RoleSuperAdmin, true},
		{domain.RoleSystemAdmin, true},
		{domain.RoleAdmin, false},
		{domain.RolePrincipal, false},
		{domain.RoleFaculty, false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.role.IsSuperUser(); got != tt.want {
			t.Errorf("%q.IsSuperUser() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestPermissionIsWildcard(t *testing.T) {
	if !domain.PermissionAll.IsWildcard() || !domain.PermissionAllAlias.IsWildcard() {
		t.Error("expected * and all to be wildcards")
	}
	if domain.Permission("view_dashboard").IsWildcard() {
		t.Error("view_dashboard is not a wildcard")
	}
}

func TestPrincipalGranted(t *testing.T) {
	p := domain.Principal{
		ID:   "u-1",
		Role: domain.RoleFaculty,
		ExplicitPermissions: map[domain.Permission]bool{
			"generate_reports": true,
			"manage_alerts":    false,
		},
	}
	if !p.Granted("generate_reports") {
		t.Error("expected generate_reports to be granted")
	}
	if p.Granted("manage_alerts") {
		t.Error("a false entry must not grant")
	}
	if p.Granted("view_dashboard") {
		t.Error("absent entry must not grant")
	}
}

func TestPrincipalAffiliatedWith(t *testing.T) {
	p := domain.Principal{ID: "u-1", Institutions: []string{"inst-a", "inst-b"}}
	if !p.AffiliatedWith("inst-a") {
		t.Error("expected affiliation with inst-a")
	}
	if p.AffiliatedWith("inst-c") {
		t.Error("unexpected affiliation with inst-c")
	}
	if p.AffiliatedWith("") {
		t.Error("empty institution must never match")
	}
}

func TestClaimsRoundTrip(t *testing.T) {
	p := domain.Principal{
		ID:                  "u-7",
		Email:               "a@example.edu",
		Role:                domain.RoleAuditor,
		ExplicitPermissions: map[domain.Permission]bool{"manage_faculty": true},
		Institutions:        []string{"inst-a"},
	}
	got := domain.ClaimsFor(p).Principal()
	if got.ID != p.ID || got.Role != p.Role || got.Email != p.Email {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.Granted("manage_faculty") || !got.AffiliatedWith("inst-a") {
		t.Errorf("round trip lost grants or affiliations: %+v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		authn bool
		authz bool
	}{
		{"unauthenticated", domain.ErrUnauthenticated, true, false},
		{"invalid token", domain.ErrInvalidToken, true, false},
		{"expired wrapped", fmt.Errorf("%w: %w", domain.ErrInvalidToken, domain.ErrTokenExpired), true, false},
		{"refresh failed", fmt.Errorf("refreshing: %w", domain.ErrRefreshFailed), true, false},
		{"forbidden", domain.ErrForbidden, false, true},
		{"other", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.IsAuthenticationError(tt.err); got != tt.authn {
				t.Errorf("IsAuthenticationError = %v, want %v", got, tt.authn)
			}
			if got := domain.IsAuthorizationError(tt.err); got != tt.authz {
				t.Errorf("IsAuthorizationError = %v, want %v", got, tt.authz)
			}
		})
	}

	if errors.Is(domain.ErrInvalidCredentials, domain.ErrUnauthenticated) {
		t.Error("ErrInvalidCredentials should not be ErrUnauthenticated (they are separate sentinels)")
	}
}

package domain

import (
	"slices"
	"time"
)

// Permission is a named capability (e.g. "manage_approvals", "view_dashboard").
type Permission string

// Wildcard permissions grant every capability.
const (
	PermissionAll      Permission = "*"
	PermissionAllAlias Permission = "all"
)

// IsWildcard reports whether p stands for every permission.
func (p Permission) IsWildcard() bool {
	return p == PermissionAll || p == PermissionAllAlias
}

// Role is a coarse-grained tag implying a default permission set.
type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleSystemAdmin       Role = "system_admin"
	RoleAdmin             Role = "admin"
	RolePrincipal         Role = "principal"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleAuditor           Role = "auditor"
	RoleFaculty           Role = "faculty"
	RoleViewer            Role = "viewer"
)

// KnownRoles is the closed set of roles.
var KnownRoles = []Role{
	RoleSuperAdmin,
	RoleSystemAdmin,
	RoleAdmin,
	RolePrincipal,
	RoleComplianceOfficer,
	RoleAuditor,
	RoleFaculty,
	RoleViewer,
}

// Known reports whether r belongs to the closed set of roles.
func (r Role) Known() bool {
	return slices.Contains(KnownRoles, r)
}

// IsSuperUser reports whether r bypasses every permission check.
func (r Role) IsSuperUser() bool {
	return r == RoleSystemAdmin || r == RoleSuperAdmin
}

// Principal represents an authenticated user for the lifetime of a request or session.
type Principal struct {
	ID                  string              `json:"id"`
	Email               string              `json:"email,omitempty"`
	Name                string              `json:"name,omitempty"`
	Role                Role                `json:"role"`
	ExplicitPermissions map[Permission]bool `json:"permissions,omitempty"`
	Institutions        []string            `json:"institutions,omitempty"`
}

// Granted reports whether perm is explicitly granted (set to true) for the principal.
func (p Principal) Granted(perm Permission) bool {
	return p.ExplicitPermissions[perm]
}

// AffiliatedWith reports whether the principal may act for the institution.
func (p Principal) AffiliatedWith(institutionID string) bool {
	return institutionID != "" && slices.Contains(p.Institutions, institutionID)
}

// Claims are the verified identity facts handed to the token issuer.
type Claims struct {
	Subject             string              `json:"sub"`
	Email               string              `json:"email,omitempty"`
	Name                string              `json:"name,omitempty"`
	Role                Role                `json:"role"`
	ExplicitPermissions map[Permission]bool `json:"permissions,omitempty"`
	Institutions        []string            `json:"institutions,omitempty"`
}

// Principal converts verified claims into a Principal.
func (c Claims) Principal() Principal {
	return Principal{
		ID:                  c.Subject,
		Email:               c.Email,
		Name:                c.Name,
		Role:                c.Role,
		ExplicitPermissions: c.ExplicitPermissions,
		Institutions:        c.Institutions,
	}
}

// ClaimsFor builds issuer claims from an existing principal.
func ClaimsFor(p Principal) Claims {
	return Claims{
		Subject:             p.ID,
		Email:               p.Email,
		Name:                p.Name,
		Role:                p.Role,
		ExplicitPermissions: p.ExplicitPermissions,
		Institutions:        p.Institutions,
	}
}

// Credential is the bearer token pair returned at login, registration and refresh.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Empty reports whether the credential carries no access token.
func (c Credential) Empty() bool {
	return c.AccessToken == ""
}

// Package authz decides whether a principal may perform an action.
//
// It is shared by the server route guard and the client navigation guard so the
// two can never disagree. Every function is pure: no I/O, no mutable state.
package authz

import (
	"slices"

	"parss/internal/domain"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Decision reasons.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonSuperUser       = "superuser"
	ReasonGranted         = "granted"
	ReasonNoRequirement   = "no requirement"
	ReasonMissingRole     = "role not permitted"
	ReasonMissingPerm     = "permission not granted"
)

// Requirement declares what a route or view needs. Within a list any entry
// suffices; when both lists are set, both must be satisfied.
type Requirement struct {
	Permissions []domain.Permission `json:"permissions,omitempty"`
	Roles       []domain.Role       `json:"roles,omitempty"`
}

// Empty reports whether the requirement only asks for authentication.
func (r Requirement) Empty() bool {
	return len(r.Permissions) == 0 && len(r.Roles) == 0
}

// AnyPermission builds a requirement satisfied by any of perms.
func AnyPermission(perms ...domain.Permission) Requirement {
	return Requirement{Permissions: perms}
}

// AnyRole builds a requirement satisfied by any of roles.
func AnyRole(roles ...domain.Role) Requirement {
	return Requirement{Roles: roles}
}

// HasPermission reports whether p may exercise perm. Precedence:
// superuser role, explicit grant, role default (including wildcard).
// Explicit grants only add capability; there is no explicit deny.
func (t *Table) HasPermission(p *domain.Principal, perm domain.Permission) bool {
	if p == nil {
		return false
	}
	if p.Role.IsSuperUser() {
		return true
	}
	if perm == "" {
		return false
	}
	if p.Granted(perm) || p.Granted(domain.PermissionAll) || p.Granted(domain.PermissionAllAlias) {
		return true
	}
	return t.roleGrants(p.Role, perm)
}

// HasRole reports exact role equality. Roles do not inherit from each other.
func (t *Table) HasRole(p *domain.Principal, role domain.Role) bool {
	return p != nil && role != "" && p.Role == role
}

// HasAnyPermission reports whether p holds at least one of perms.
func (t *Table) HasAnyPermission(p *domain.Principal, perms ...domain.Permission) bool {
	for _, perm := range perms {
		if t.HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether p has one of roles.
func (t *Table) HasAnyRole(p *domain.Principal, roles ...domain.Role) bool {
	for _, r := range roles {
		if t.HasRole(p, r) {
			return true
		}
	}
	return false
}

// Evaluate checks p against req.
func (t *Table) Evaluate(p *domain.Principal, req Requirement) Decision {
	if p == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if len(req.Roles) > 0 && !t.HasAnyRole(p, req.Roles...) {
		return Decision{Reason: ReasonMissingRole}
	}
	if len(req.Permissions) > 0 && !t.HasAnyPermission(p, req.Permissions...) {
		return Decision{Reason: ReasonMissingPerm}
	}
	switch {
	case req.Empty():
		return Decision{Allowed: true, Reason: ReasonNoRequirement}
	case p.Role.IsSuperUser() && len(req.Roles) == 0:
		return Decision{Allowed: true, Reason: ReasonSuperUser}
	default:
		return Decision{Allowed: true, Reason: ReasonGranted}
	}
}

// CanActFor reports whether p may act on behalf of the institution.
func (t *Table) CanActFor(p *domain.Principal, institutionID string) bool {
	if p == nil || institutionID == "" {
		return false
	}
	if p.Role.IsSuperUser() {
		return true
	}
	return p.AffiliatedWith(institutionID)
}

// EffectivePermissions returns the sorted union of role defaults and explicit
// grants. Principals holding every capability get the single wildcard entry.
func (t *Table) EffectivePermissions(p *domain.Principal) []domain.Permission {
	if p == nil {
		return nil
	}
	if t.HasPermission(p, domain.PermissionAll) {
		return []domain.Permission{domain.PermissionAll}
	}
	perms := t.Permissions(p.Role)
	for perm, granted := range p.ExplicitPermissions {
		if granted && perm != "" {
			perms = append(perms, perm)
		}
	}
	slices.Sort(perms)
	return slices.Compact(perms)
}

// HasPermission evaluates against the default table.
func HasPermission(p *domain.Principal, perm domain.Permission) bool {
	return defaultTable.HasPermission(p, perm)
}

// HasRole evaluates against the default table.
func HasRole(p *domain.Principal, role domain.Role) bool {
	return defaultTable.HasRole(p, role)
}

// Evaluate evaluates req against the default table.
func Evaluate(p *domain.Principal, req Requirement) Decision {
	return defaultTable.Evaluate(p, req)
}

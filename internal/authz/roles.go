package authz

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"parss/internal/domain"
)

// Permission names used by the compliance suite.
const (
	PermViewDashboard    domain.Permission = "view_dashboard"
	PermViewOwnData      domain.Permission = "view_own_data"
	PermViewCompliance   domain.Permission = "view_compliance"
	PermManageCompliance domain.Permission = "manage_compliance"
	PermViewDocuments    domain.Permission = "view_documents"
	PermUploadDocuments  domain.Permission = "upload_documents"
	PermManageDocuments  domain.Permission = "manage_documents"
	PermViewAlerts       domain.Permission = "view_alerts"
	PermManageAlerts     domain.Permission = "manage_alerts"
	PermManageFaculty    domain.Permission = "manage_faculty"
	PermManageApprovals  domain.Permission = "manage_approvals"
	PermViewReports      domain.Permission = "view_reports"
	PermGenerateReports  domain.Permission = "generate_reports"
	PermViewAuditLogs    domain.Permission = "view_audit_logs"
	PermManageUsers      domain.Permission = "manage_users"
	PermManageSettings   domain.Permission = "manage_settings"
)

// Catalog lists every named permission, in declaration order.
var Catalog = []domain.Permission{
	PermViewDashboard, PermViewOwnData, PermViewCompliance, PermManageCompliance,
	PermViewDocuments, PermUploadDocuments, PermManageDocuments, PermViewAlerts,
	PermManageAlerts, PermManageFaculty, PermManageApprovals, PermViewReports,
	PermGenerateReports, PermViewAuditLogs, PermManageUsers, PermManageSettings,
}

// Known reports whether perm is a named permission. The wildcard is not.
func Known(perm domain.Permission) bool {
	return slices.Contains(Catalog, perm)
}

// DefaultRolePermissions maps built-in roles to their ordered default permissions.
// Superuser roles are listed with the wildcard for completeness; the evaluator
// bypasses the table for them.
var DefaultRolePermissions = map[domain.Role][]domain.Permission{
	domain.RoleSuperAdmin:  {domain.PermissionAll},
	domain.RoleSystemAdmin: {domain.PermissionAll},
	domain.RoleAdmin:       {domain.PermissionAll},
	domain.RolePrincipal: {
		PermViewDashboard,
		PermViewCompliance,
		PermManageCompliance,
		PermViewDocuments,
		PermManageDocuments,
		PermViewAlerts,
		PermManageFaculty,
		PermManageApprovals,
		PermViewReports,
		PermGenerateReports,
	},
	domain.RoleComplianceOfficer: {
		PermViewDashboard,
		PermViewCompliance,
		PermManageCompliance,
		PermViewDocuments,
		PermManageDocuments,
		PermViewAlerts,
		PermManageAlerts,
		PermViewReports,
		PermGenerateReports,
	},
	domain.RoleAuditor: {
		PermViewDashboard,
		PermViewCompliance,
		PermViewDocuments,
		PermViewReports,
		PermGenerateReports,
		PermViewAuditLogs,
	},
	domain.RoleFaculty: {
		PermViewOwnData,
		PermViewDashboard,
		PermUploadDocuments,
		PermViewAlerts,
	},
	domain.RoleViewer: {
		PermViewDashboard,
		PermViewReports,
	},
}

// Table is an immutable role -> default permissions mapping.
type Table struct {
	ordered  map[domain.Role][]domain.Permission
	sets     map[domain.Role]map[domain.Permission]struct{}
	wildcard map[domain.Role]bool
}

// NewTable builds a Table from role definitions. Roles outside the closed set are rejected.
func NewTable(defs map[domain.Role][]domain.Permission) (*Table, error) {
	t := &Table{
		ordered:  make(map[domain.Role][]domain.Permission, len(defs)),
		sets:     make(map[domain.Role]map[domain.Permission]struct{}, len(defs)),
		wildcard: make(map[domain.Role]bool),
	}
	for role, perms := range defs {
		if !role.Known() {
			return nil, fmt.Errorf("role table: unknown role %q", role)
		}
		set := make(map[domain.Permission]struct{}, len(perms))
		ordered := make([]domain.Permission, 0, len(perms))
		for _, p := range perms {
			if p == "" {
				return nil, fmt.Errorf("role table: empty permission for role %q", role)
			}
			if _, dup := set[p]; dup {
				continue
			}
			set[p] = struct{}{}
			ordered = append(ordered, p)
			if p.IsWildcard() {
				t.wildcard[role] = true
			}
		}
		t.sets[role] = set
		t.ordered[role] = ordered
	}
	return t, nil
}

// LoadTable reads role definitions from JSON of the form {"role": ["perm", ...]}.
func LoadTable(r io.Reader) (*Table, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding role table: %w", err)
	}
	defs := make(map[domain.Role][]domain.Permission, len(raw))
	for role, perms := range raw {
		converted := make([]domain.Permission, len(perms))
		for i, p := range perms {
			converted[i] = domain.Permission(p)
		}
		defs[domain.Role(role)] = converted
	}
	return NewTable(defs)
}

var defaultTable = mustTable(DefaultRolePermissions)

// Default returns the built-in role table.
func Default() *Table {
	return defaultTable
}

func mustTable(defs map[domain.Role][]domain.Permission) *Table {
	t, err := NewTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

// Permissions returns a copy of the ordered default permissions for role.
// Unknown roles yield nil.
func (t *Table) Permissions(role domain.Role) []domain.Permission {
	return slices.Clone(t.ordered[role])
}

// Roles returns the roles defined in the table, sorted by name.
func (t *Table) Roles() []domain.Role {
	roles := make([]domain.Role, 0, len(t.ordered))
	for r := range t.ordered {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

func (t *Table) roleGrants(role domain.Role, perm domain.Permission) bool {
	if t.wildcard[role] {
		return true
	}
	_, ok := t.sets[role][perm]
	return ok
}

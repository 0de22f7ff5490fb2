package rbac

import "github.com/odyssey-erp/ledger-authz/internal/shared"

// defaultMatrix is the built-in permission matrix. It is never mutated.
var defaultMatrix = Matrix{
	RoleSuperAdmin: {
		Inherits: []Role{RoleAdmin},
		Routes:   []string{"*"},
		Actions:  shared.AllPermissions(),
	},
	RoleAdmin: {
		Inherits: []Role{RoleManager},
		Routes: []string{
			"/users",
			"/users/*",
			"/roles",
			"/roles/*",
			"/organizations",
			"/organizations/*",
			"/settings",
			"/settings/*",
		},
		Actions: []string{
			shared.PermUsersView,
			shared.PermUsersManage,
			shared.PermRolesView,
			shared.PermRolesManage,
			shared.PermOrganizationsView,
			shared.PermOrganizationsManage,
			shared.PermProjectsManage,
			shared.PermSettingsManage,
			shared.PermAccountsManage,
		},
	},
	RoleManager: {
		Inherits: []Role{RoleAccountant, RoleAuditor},
		Routes: []string{
			"/approvals/*",
			"/projects",
			"/projects/*",
			"/filters/*",
		},
		Actions: []string{
			shared.PermApprovalsReview,
			shared.PermTransactionsManage,
			shared.PermProjectsView,
		},
	},
	RoleAccountant: {
		Inherits: []Role{RoleViewer},
		Routes: []string{
			"/transactions/new",
			"/transactions/:id",
			"/transactions/:id/edit",
			"/documents",
			"/documents/:id",
			"/filters",
		},
		Actions: []string{
			shared.PermTransactionsCreate,
			shared.PermDocumentsView,
			shared.PermDocumentsManage,
			shared.PermFiltersManage,
		},
	},
	RoleAuditor: {
		Inherits: []Role{RoleViewer},
		Routes: []string{
			"/audit",
			"/audit/*",
			"/approvals",
			"/documents",
		},
		Actions: []string{
			shared.PermAuditView,
			shared.PermApprovalsView,
			shared.PermReportsExport,
			shared.PermDocumentsView,
		},
	},
	RoleViewer: {
		Routes: []string{
			"/dashboard",
			"/profile",
			"/accounts",
			"/transactions",
			"/reports",
			"/reports/*",
		},
		Actions: []string{
			shared.PermAccountsView,
			shared.PermTransactionsView,
			shared.PermReportsView,
		},
	},
	RoleHR: {
		Routes: []string{
			"/dashboard",
			"/profile",
			"/hr",
			"/hr/*",
		},
		Actions: []string{
			shared.PermHRView,
			shared.PermHRManage,
			shared.PermUsersView,
		},
	},
	RoleTeamLeader: {
		Inherits: []Role{RoleViewer},
		Routes: []string{
			"/team",
			"/team/*",
			"/approvals",
		},
		Actions: []string{
			shared.PermTeamView,
			shared.PermTeamManage,
			shared.PermApprovalsView,
		},
	},
}

// DefaultMatrix returns the built-in matrix. Callers must treat it as read-only.
func DefaultMatrix() Matrix {
	return defaultMatrix
}

// Roles lists the roles declared in the matrix in lexical order.
func (m Matrix) Roles() []Role {
	names := make(Set, len(m))
	for role := range m {
		names[string(role)] = struct{}{}
	}
	sorted := names.Sorted()
	roles := make([]Role, len(sorted))
	for i, name := range sorted {
		roles[i] = Role(name)
	}
	return roles
}

// Has reports whether the role is declared.
func (m Matrix) Has(role Role) bool {
	_, ok := m[role]
	return ok
}

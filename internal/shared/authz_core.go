package shared

// Core platform permissions.
const (
	PermUsersView   = "users.view"
	PermUsersManage = "users.manage"

	PermRolesView   = "roles.view"
	PermRolesManage = "roles.manage"

	PermOrganizationsView   = "organizations.view"
	PermOrganizationsManage = "organizations.manage"

	PermProjectsView   = "projects.view"
	PermProjectsManage = "projects.manage"

	PermSettingsManage = "settings.manage"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersManage,
		PermRolesView,
		PermRolesManage,
		PermOrganizationsView,
		PermOrganizationsManage,
		PermProjectsView,
		PermProjectsManage,
		PermSettingsManage,
	}
}

// AllPermissions returns the closed permission vocabulary.
func AllPermissions() []string {
	all := make([]string, 0, 32)
	all = append(all, CoreScopes()...)
	all = append(all, FinanceScopes()...)
	all = append(all, OrganizationalScopes()...)
	return all
}

// IsKnownPermission reports whether code belongs to the vocabulary.
func IsKnownPermission(code string) bool {
	_, ok := knownPermissions[code]
	return ok
}

var knownPermissions = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, code := range AllPermissions() {
		set[code] = struct{}{}
	}
	return set
}()

package shared

// Organizational permissions used by HR and team leads.
const (
	PermHRView   = "hr.view"
	PermHRManage = "hr.manage"

	PermTeamView   = "team.view"
	PermTeamManage = "team.manage"

	PermAuditView = "audit.view"
)

// OrganizationalScopes lists permissions outside the finance module.
func OrganizationalScopes() []string {
	return []string{
		PermHRView,
		PermHRManage,
		PermTeamView,
		PermTeamManage,
		PermAuditView,
	}
}

package shared

// Finance permissions declared for RBAC.
const (
	PermAccountsView   = "accounts.view"
	PermAccountsManage = "accounts.manage"

	PermTransactionsView   = "transactions.view"
	PermTransactionsCreate = "transactions.create"
	PermTransactionsManage = "transactions.manage"

	PermApprovalsView   = "approvals.view"
	PermApprovalsReview = "approvals.review"

	PermReportsView   = "reports.view"
	PermReportsExport = "reports.export"

	PermDocumentsView   = "documents.view"
	PermDocumentsManage = "documents.manage"

	PermFiltersManage = "filters.manage"
)

// FinanceScopes lists all permissions related to the finance module.
func FinanceScopes() []string {
	return []string{
		PermAccountsView,
		PermAccountsManage,
		PermTransactionsView,
		PermTransactionsCreate,
		PermTransactionsManage,
		PermApprovalsView,
		PermApprovalsReview,
		PermReportsView,
		PermReportsExport,
		PermDocumentsView,
		PermDocumentsManage,
		PermFiltersManage,
	}
}

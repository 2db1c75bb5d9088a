package shared

// Core platform permissions.
const (
	PermUsersView    = "users.view"
	PermUsersEdit    = "users.edit"
	PermUsersSuspend = "users.suspend"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
)

// QA workflow permissions.
const (
	PermRubricsView = "rubrics.view"
	PermRubricsEdit = "rubrics.edit"

	PermAssignmentsView   = "assignments.view"
	PermAssignmentsAssign = "assignments.assign"

	PermEvaluationsView  = "evaluations.view"
	PermEvaluationsScore = "evaluations.score"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermUsersSuspend,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
	}
}

// QAScopes lists all permissions related to the QA workflow.
func QAScopes() []string {
	return []string{
		PermRubricsView,
		PermRubricsEdit,
		PermAssignmentsView,
		PermAssignmentsAssign,
		PermEvaluationsView,
		PermEvaluationsScore,
	}
}

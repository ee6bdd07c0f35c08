package models

// Role is an account's identity tier. Roles are assigned at registration and
// do not change afterwards.
type Role string

const (
	// RolePemohon is the requesting OPD/agency account (Level 1).
	RolePemohon Role = "pemohon"
	// RolePengelolaTeknis is the technical manager who executes assigned work.
	RolePengelolaTeknis Role = "pengelola_teknis"
	// RoleOperator verifies incoming submissions.
	RoleOperator Role = "operator"
	// RoleKepalaSeksi gives final approval and assigns technical managers.
	RoleKepalaSeksi Role = "kepala_seksi"
	// RoleAdministrator manages accounts and the system.
	RoleAdministrator Role = "administrator"
)

// Permission is an atomic capability token. Membership in a role's permission
// set is the sole basis for authorization decisions.
type Permission string

const (
	PermissionCreateRequest           Permission = "create_request"
	PermissionViewOwnRequests         Permission = "view_own_requests"
	PermissionEditOwnRequests         Permission = "edit_own_requests"
	PermissionDeleteOwnDrafts         Permission = "delete_own_drafts"
	PermissionUploadDocuments         Permission = "upload_documents"
	PermissionAddComments             Permission = "add_comments"
	PermissionViewAssignedRequests    Permission = "view_assigned_requests"
	PermissionUpdateProgress          Permission = "update_progress"
	PermissionCompleteRequests        Permission = "complete_requests"
	PermissionViewAllRequests         Permission = "view_all_requests"
	PermissionVerifyRequests          Permission = "verify_requests"
	PermissionAssignTechnicalManagers Permission = "assign_technical_managers"
	PermissionFinalApproval           Permission = "final_approval"
	PermissionViewStatistics          Permission = "view_statistics"
	PermissionManageUsers             Permission = "manage_users"
	PermissionManageSystem            Permission = "manage_system"
)

var rolePermissions = map[Role][]Permission{
	RolePemohon: {
		PermissionCreateRequest,
		PermissionViewOwnRequests,
		PermissionEditOwnRequests,
		PermissionDeleteOwnDrafts,
		PermissionUploadDocuments,
		PermissionAddComments,
	},
	RolePengelolaTeknis: {
		PermissionViewAssignedRequests,
		PermissionUpdateProgress,
		PermissionCompleteRequests,
		PermissionUploadDocuments,
		PermissionAddComments,
	},
	RoleOperator: {
		PermissionViewAllRequests,
		PermissionVerifyRequests,
		PermissionViewStatistics,
		PermissionAddComments,
	},
	RoleKepalaSeksi: {
		PermissionViewAllRequests,
		PermissionFinalApproval,
		PermissionAssignTechnicalManagers,
		PermissionViewStatistics,
		PermissionAddComments,
	},
	RoleAdministrator: {
		PermissionCreateRequest,
		PermissionViewOwnRequests,
		PermissionViewAllRequests,
		PermissionVerifyRequests,
		PermissionAssignTechnicalManagers,
		PermissionFinalApproval,
		PermissionUpdateProgress,
		PermissionCompleteRequests,
		PermissionUploadDocuments,
		PermissionAddComments,
		PermissionViewStatistics,
		PermissionManageUsers,
		PermissionManageSystem,
	},
}

var dashboardPaths = map[Role]string{
	RolePemohon:         "/dashboard",
	RolePengelolaTeknis: "/pengelola-teknis/dashboard",
	RoleOperator:        "/operator/dashboard",
	RoleKepalaSeksi:     "/kepala-seksi/dashboard",
	RoleAdministrator:   "/admin/dashboard",
}

// Valid reports whether r is one of the five defined roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// PermissionsFor returns the fixed permission set for a role. An unrecognized
// role yields the empty set: authorization fails closed, never errors.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether perm is in the given permission set.
func HasPermission(perms []Permission, perm Permission) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// RoleHasPermission reports whether the role's permission set contains perm.
func RoleHasPermission(role Role, perm Permission) bool {
	return HasPermission(rolePermissions[role], perm)
}

// HasRole reports whether the actor's role equals the given role.
func HasRole(actor, role Role) bool {
	return actor == role
}

// HasAnyRole reports whether the actor's role is one of the given roles.
func HasAnyRole(actor Role, roles ...Role) bool {
	for _, r := range roles {
		if actor == r {
			return true
		}
	}
	return false
}

// DashboardPathFor maps a role to its post-login dashboard route. Unknown or
// empty roles fall back to the generic dashboard.
func DashboardPathFor(role Role) string {
	if path, ok := dashboardPaths[role]; ok {
		return path
	}
	return "/dashboard"
}

package authz

import "strings"

// Role is a named bundle of permissions assigned to a user. Privilege is not
// linearly ordered across roles (deal leads and department leads overlap
// without one containing the other), so role comparisons must go through the
// permission catalog, never through assumed rank.
type Role string

const (
	RoleSuperAdmin     Role = "super_admin"
	RoleAdmin          Role = "admin"
	RoleRegionalLead   Role = "regional_lead"
	RoleDealLead       Role = "deal_lead"
	RoleDepartmentLead Role = "department_lead"
	RoleTeamMember     Role = "team_member"
	RoleViewer         Role = "viewer"
)

// Roles lists every recognized role.
func Roles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleAdmin,
		RoleRegionalLead,
		RoleDealLead,
		RoleDepartmentLead,
		RoleTeamMember,
		RoleViewer,
	}
}

// ParseRole converts an untrusted string (session claim, stored column) into a
// Role. Unrecognized values fail closed: ok is false and the zero role carries
// no permissions anywhere in this package.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(raw)))
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleRegionalLead, RoleDealLead,
		RoleDepartmentLead, RoleTeamMember, RoleViewer:
		return role, true
	}
	return "", false
}

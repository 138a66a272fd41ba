package authz

// Permission is an atomic capability tag of the form <resource>:<action>.
// The vocabulary is closed: a tag that is not part of the universe never
// matches any role, which keeps typos from silently granting access.
type Permission string

const (
	PermDealsCreate     Permission = "deals:create"
	PermDealsRead       Permission = "deals:read"
	PermDealsUpdate     Permission = "deals:update"
	PermDealsArchive    Permission = "deals:archive"
	PermDealsAssignLead Permission = "deals:assign-lead"

	PermChecklistsRead   Permission = "checklists:read"
	PermChecklistsUpdate Permission = "checklists:update"

	PermFilesUpload Permission = "files:upload"
	PermFilesRead   Permission = "files:read"
	PermFilesDelete Permission = "files:delete"

	PermChatRead Permission = "chat:read"
	PermChatPost Permission = "chat:post"

	PermArchiveView    Permission = "archive:view"
	PermArchiveRestore Permission = "archive:restore"

	PermReportsView Permission = "reports:view"

	PermStateReqsRead   Permission = "state-reqs:read"
	PermStateReqsUpdate Permission = "state-reqs:update"

	PermOTARun  Permission = "ota:run"
	PermOTAView Permission = "ota:view"

	PermUsersRead        Permission = "users:read"
	PermUsersManageRoles Permission = "users:manage-roles"

	PermOrgsManage    Permission = "orgs:manage"
	PermRegionsManage Permission = "regions:manage"

	PermAssignmentsManage Permission = "assignments:manage"
	PermAuditView         Permission = "audit:view"
)

// universe is the full permission vocabulary. Adding a permission means adding
// it here and granting it to the non-admin roles that need it; the admin roles
// pick it up automatically when the catalog is assembled.
var universe = []Permission{
	PermDealsCreate, PermDealsRead, PermDealsUpdate, PermDealsArchive, PermDealsAssignLead,
	PermChecklistsRead, PermChecklistsUpdate,
	PermFilesUpload, PermFilesRead, PermFilesDelete,
	PermChatRead, PermChatPost,
	PermArchiveView, PermArchiveRestore,
	PermReportsView,
	PermStateReqsRead, PermStateReqsUpdate,
	PermOTARun, PermOTAView,
	PermUsersRead, PermUsersManageRoles,
	PermOrgsManage, PermRegionsManage,
	PermAssignmentsManage, PermAuditView,
}

// PermissionSet is an allow-set of permissions.
type PermissionSet map[Permission]struct{}

// Has reports whether perm is in the set.
func (s PermissionSet) Has(perm Permission) bool {
	_, ok := s[perm]
	return ok
}

// rolePermissions declares the allow-sets for non-admin roles. Super admin and
// admin are intentionally absent: they are assigned the whole universe in
// buildCatalog so a newly added permission cannot drift out of the admin sets.
var rolePermissions = map[Role][]Permission{
	RoleRegionalLead: {
		PermDealsCreate, PermDealsRead, PermDealsUpdate, PermDealsAssignLead,
		PermChecklistsRead, PermChecklistsUpdate,
		PermFilesUpload, PermFilesRead, PermFilesDelete,
		PermChatRead, PermChatPost,
		PermArchiveView,
		PermReportsView,
		PermStateReqsRead, PermStateReqsUpdate,
		PermOTARun, PermOTAView,
		PermUsersRead,
		PermAssignmentsManage,
	},
	RoleDealLead: {
		PermDealsRead, PermDealsUpdate,
		PermChecklistsRead, PermChecklistsUpdate,
		PermFilesUpload, PermFilesRead, PermFilesDelete,
		PermChatRead, PermChatPost,
		PermArchiveView,
		PermStateReqsRead, PermStateReqsUpdate,
		PermOTARun, PermOTAView,
		PermUsersRead,
		PermAssignmentsManage,
	},
	RoleDepartmentLead: {
		PermDealsRead,
		PermChecklistsRead, PermChecklistsUpdate,
		PermFilesUpload, PermFilesRead,
		PermChatRead, PermChatPost,
		PermReportsView,
		PermStateReqsRead,
		PermOTAView,
		PermUsersRead,
	},
	RoleTeamMember: {
		PermDealsRead,
		PermChecklistsRead, PermChecklistsUpdate,
		PermFilesUpload, PermFilesRead,
		PermChatRead, PermChatPost,
		PermStateReqsRead,
	},
	RoleViewer: {
		PermDealsRead,
		PermChecklistsRead,
		PermFilesRead,
		PermChatRead,
	},
}

// catalog is the single canonical mapping from role to allow-set, shared by
// the advisory client listing and the authoritative server check.
var catalog = buildCatalog()

func buildCatalog() map[Role]PermissionSet {
	c := make(map[Role]PermissionSet, len(rolePermissions)+2)
	for _, admin := range []Role{RoleSuperAdmin, RoleAdmin} {
		set := make(PermissionSet, len(universe))
		for _, perm := range universe {
			set[perm] = struct{}{}
		}
		c[admin] = set
	}
	for role, perms := range rolePermissions {
		set := make(PermissionSet, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		c[role] = set
	}
	return c
}

// Universe returns a copy of the full permission vocabulary.
func Universe() []Permission {
	out := make([]Permission, len(universe))
	copy(out, universe)
	return out
}

// PermissionsFor returns the allow-set for role. Unrecognized roles get an
// empty set, never an error.
func PermissionsFor(role Role) PermissionSet {
	set, ok := catalog[role]
	if !ok {
		return PermissionSet{}
	}
	out := make(PermissionSet, len(set))
	for perm := range set {
		out[perm] = struct{}{}
	}
	return out
}

// HasPermission reports whether a principal holding role may perform the
// action identified by perm. Pure and I/O free, so it serves both the SPA's
// advisory checks and the authoritative server-side enforcement; only the
// server-side call is a security boundary.
func HasPermission(role Role, perm Permission) bool {
	set, ok := catalog[role]
	if !ok {
		return false
	}
	return set.Has(perm)
}

// IsAdmin reports whether role is one of the two administrative roles.
func IsAdmin(role Role) bool {
	return role == RoleSuperAdmin || role == RoleAdmin
}

// IsLeader reports whether role carries leadership privileges.
func IsLeader(role Role) bool {
	return IsAdmin(role) || role == RoleRegionalLead || role == RoleDealLead
}

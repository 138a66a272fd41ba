package authz

import "context"

// Directory is the narrow read-only surface the scope resolver needs from the
// data store. Implementations perform ordinary point reads; timeouts and
// retries belong to the data-access layer, not here.
type Directory interface {
	// FindUserRegion returns the user's region id, or "" when the user has no
	// region on file or does not exist.
	FindUserRegion(ctx context.Context, userID string) (string, error)
	// FindDeal returns the scope-relevant attributes of one deal.
	FindDeal(ctx context.Context, dealID string) (DealRef, error)
	// HasActiveAssignment reports whether the user holds an active building
	// assignment on the deal. Inactive assignments do not count.
	HasActiveAssignment(ctx context.Context, userID, dealID string) (bool, error)
}

// Resolver computes deal access boundaries for a caller. It is stateless and
// safe for concurrent use.
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver over the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// DealScope returns the collection filter for (userID, role, orgID). It is
// total: unrecognized roles yield a filter matching nothing, and a directory
// lookup failure degrades to the narrower lead/assignment scope instead of
// propagating into the request path.
func (r *Resolver) DealScope(ctx context.Context, userID string, role Role, orgID string) Filter {
	if IsAdmin(role) {
		return Filter{OrgID: orgID}
	}
	switch role {
	case RoleRegionalLead:
		if regionID := r.userRegion(ctx, userID); regionID != "" {
			return Filter{OrgID: orgID, RegionID: regionID, LeadUserID: userID, AssignedUserID: userID}
		}
		// Region-less regional leads scope like a deal lead. Deliberate
		// fallback, not an error.
	case RoleDealLead, RoleDepartmentLead, RoleTeamMember, RoleViewer:
	default:
		// Absence of a role definition must never widen access.
		return Filter{OrgID: orgID, MatchNone: true}
	}
	return Filter{OrgID: orgID, LeadUserID: userID, AssignedUserID: userID}
}

// CanAccessDeal is the point check used on single-resource routes. It mirrors
// DealScope's precedence but short-circuits on the one deal. The deal's
// organization is verified for every role, admins included; callers do not
// need to pre-filter by org.
func (r *Resolver) CanAccessDeal(ctx context.Context, userID string, role Role, orgID, dealID string) bool {
	if r.dir == nil {
		return false
	}
	deal, err := r.dir.FindDeal(ctx, dealID)
	if err != nil {
		return false
	}
	if orgID == "" || deal.OrgID != orgID {
		return false
	}
	if IsAdmin(role) {
		return true
	}
	switch role {
	case RoleRegionalLead:
		if regionID := r.userRegion(ctx, userID); regionID != "" && deal.RegionID == regionID {
			return true
		}
		// Region mismatch or no region on file: fall through to the
		// lead/assignment rules.
	case RoleDealLead, RoleDepartmentLead, RoleTeamMember, RoleViewer:
	default:
		return false
	}
	if deal.DealLeadID != "" && deal.DealLeadID == userID {
		return true
	}
	active, err := r.dir.HasActiveAssignment(ctx, userID, dealID)
	if err != nil {
		return false
	}
	return active
}

func (r *Resolver) userRegion(ctx context.Context, userID string) string {
	if r.dir == nil {
		return ""
	}
	regionID, err := r.dir.FindUserRegion(ctx, userID)
	if err != nil {
		// A failed lookup narrows the scope rather than crashing the request.
		return ""
	}
	return regionID
}

package authz

import (
	"context"
	"errors"
	"testing"
)

// fakeDirectory serves scope lookups from in-memory maps.
type fakeDirectory struct {
	regions     map[string]string          // userID -> regionID
	deals       map[string]DealRef         // dealID -> ref
	assignments map[string]map[string]bool // dealID -> userID -> isActive
	regionErr   error
	dealErr     error
	assignErr   error
}

func (d *fakeDirectory) FindUserRegion(_ context.Context, userID string) (string, error) {
	if d.regionErr != nil {
		return "", d.regionErr
	}
	return d.regions[userID], nil
}

func (d *fakeDirectory) FindDeal(_ context.Context, dealID string) (DealRef, error) {
	if d.dealErr != nil {
		return DealRef{}, d.dealErr
	}
	deal, ok := d.deals[dealID]
	if !ok {
		return DealRef{}, errors.New("deal not found")
	}
	return deal, nil
}

func (d *fakeDirectory) HasActiveAssignment(_ context.Context, userID, dealID string) (bool, error) {
	if d.assignErr != nil {
		return false, d.assignErr
	}
	return d.assignments[dealID][userID], nil
}

func newScopeFixture() (*Resolver, *fakeDirectory) {
	dir := &fakeDirectory{
		regions: map[string]string{
			"lead-west": "region-west",
		},
		deals: map[string]DealRef{
			"d1": {ID: "d1", OrgID: "org-1"},
			"d2": {ID: "d2", OrgID: "org-1"},
			"d3": {ID: "d3", OrgID: "org-1", RegionID: "region-west"},
			"d4": {ID: "d4", OrgID: "org-1", RegionID: "region-east"},
			"d5": {ID: "d5", OrgID: "org-1", DealLeadID: "lead-floater"},
			"dx": {ID: "dx", OrgID: "org-2"},
		},
		assignments: map[string]map[string]bool{
			"d1": {"member-1": true},
			"d2": {"member-1": false},
		},
	}
	return NewResolver(dir), dir
}

func TestCanAccessDealTeamMemberAssignments(t *testing.T) {
	r, _ := newScopeFixture()
	ctx := context.Background()

	if !r.CanAccessDeal(ctx, "member-1", RoleTeamMember, "org-1", "d1") {
		t.Fatal("active assignment on d1 should grant access")
	}
	if r.CanAccessDeal(ctx, "member-1", RoleTeamMember, "org-1", "d2") {
		t.Fatal("inactive assignment on d2 must not grant access")
	}
	if r.CanAccessDeal(ctx, "member-1", RoleTeamMember, "org-1", "d3") {
		t.Fatal("no assignment on d3 must not grant access")
	}
}

func TestCanAccessDealRegionalLead(t *testing.T) {
	r, _ := newScopeFixture()
	ctx := context.Background()

	if !r.CanAccessDeal(ctx, "lead-west", RoleRegionalLead, "org-1", "d3") {
		t.Fatal("region match should grant access")
	}
	if r.CanAccessDeal(ctx, "lead-west", RoleRegionalLead, "org-1", "d4") {
		t.Fatal("different region with no lead/assignment must not grant access")
	}
}

func TestCanAccessDealRegionlessRegionalLeadFallsThrough(t *testing.T) {
	r, _ := newScopeFixture()
	ctx := context.Background()

	// lead-floater has no region on file but is deal lead on d5.
	if !r.CanAccessDeal(ctx, "lead-floater", RoleRegionalLead, "org-1", "d5") {
		t.Fatal("region-less regional lead should fall through to the lead rule")
	}
	if r.CanAccessDeal(ctx, "lead-floater", RoleRegionalLead, "org-1", "d4") {
		t.Fatal("region-less regional lead has no claim on d4")
	}
}

func TestCanAccessDealAdminRequiresOrgMatch(t *testing.T) {
	r, _ := newScopeFixture()
	ctx := context.Background()

	if !r.CanAccessDeal(ctx, "root", RoleSuperAdmin, "org-1", "d4") {
		t.Fatal("super admin should reach any deal in their org")
	}
	if r.CanAccessDeal(ctx, "root", RoleSuperAdmin, "org-1", "dx") {
		t.Fatal("cross-org access must be denied even for super admin")
	}
	if r.CanAccessDeal(ctx, "root", RoleAdmin, "", "d1") {
		t.Fatal("missing caller org must deny")
	}
}

func TestCanAccessDealUnknownRoleDenies(t *testing.T) {
	r, _ := newScopeFixture()
	if r.CanAccessDeal(context.Background(), "member-1", "owner", "org-1", "d1") {
		t.Fatal("unknown role must deny")
	}
}

func TestCanAccessDealLookupFailuresDeny(t *testing.T) {
	r, dir := newScopeFixture()
	ctx := context.Background()

	if r.CanAccessDeal(ctx, "member-1", RoleTeamMember, "org-1", "missing") {
		t.Fatal("unknown deal must deny")
	}

	dir.assignErr = errors.New("store unavailable")
	if r.CanAccessDeal(ctx, "member-1", RoleTeamMember, "org-1", "d1") {
		t.Fatal("assignment lookup failure must deny, not grant")
	}
}

func TestDealScopeAdmin(t *testing.T) {
	r, _ := newScopeFixture()
	f := r.DealScope(context.Background(), "root", RoleAdmin, "org-1")

	if f.Narrowed() || f.MatchNone {
		t.Fatalf("admin scope should be org-wide, got %+v", f)
	}
	if !f.Matches(DealRef{ID: "d4", OrgID: "org-1", RegionID: "region-east"}, false) {
		t.Fatal("admin filter should match every deal in the org")
	}
	if f.Matches(DealRef{ID: "dx", OrgID: "org-2"}, false) {
		t.Fatal("admin filter must exclude deals from another org")
	}
}

func TestDealScopeRegionalLead(t *testing.T) {
	r, _ := newScopeFixture()
	f := r.DealScope(context.Background(), "lead-west", RoleRegionalLead, "org-1")

	if f.RegionID != "region-west" || f.LeadUserID != "lead-west" || f.AssignedUserID != "lead-west" {
		t.Fatalf("unexpected regional lead filter: %+v", f)
	}
	if !f.Matches(DealRef{ID: "d3", OrgID: "org-1", RegionID: "region-west"}, false) {
		t.Fatal("region match should be in scope")
	}
	if f.Matches(DealRef{ID: "d4", OrgID: "org-1", RegionID: "region-east"}, false) {
		t.Fatal("foreign region with no lead/assignment should be out of scope")
	}
	if !f.Matches(DealRef{ID: "d9", OrgID: "org-1", DealLeadID: "lead-west"}, false) {
		t.Fatal("deals led by the caller stay in scope regardless of region")
	}
}

func TestDealScopeRegionLookupFailureNarrows(t *testing.T) {
	r, dir := newScopeFixture()
	dir.regionErr = errors.New("store unavailable")

	f := r.DealScope(context.Background(), "lead-west", RoleRegionalLead, "org-1")
	if f.RegionID != "" {
		t.Fatalf("lookup failure must drop the region clause, got %+v", f)
	}
	if f.LeadUserID != "lead-west" || f.AssignedUserID != "lead-west" {
		t.Fatalf("expected lead/assignment fallback scope, got %+v", f)
	}
}

func TestDealScopeMemberRoles(t *testing.T) {
	r, _ := newScopeFixture()
	for _, role := range []Role{RoleDealLead, RoleDepartmentLead, RoleTeamMember, RoleViewer} {
		f := r.DealScope(context.Background(), "member-1", role, "org-1")
		if f.RegionID != "" || f.LeadUserID != "member-1" || f.AssignedUserID != "member-1" {
			t.Fatalf("%s: unexpected filter %+v", role, f)
		}
		if !f.Matches(DealRef{ID: "d1", OrgID: "org-1"}, true) {
			t.Fatalf("%s: active assignment should match", role)
		}
		if f.Matches(DealRef{ID: "d2", OrgID: "org-1"}, false) {
			t.Fatalf("%s: inactive assignment must not match", role)
		}
	}
}

func TestDealScopeUnknownRoleMatchesNothing(t *testing.T) {
	r, _ := newScopeFixture()
	f := r.DealScope(context.Background(), "member-1", "owner", "org-1")
	if !f.MatchNone {
		t.Fatalf("unknown role should produce an empty scope, got %+v", f)
	}
	if f.Matches(DealRef{ID: "d1", OrgID: "org-1"}, true) {
		t.Fatal("MatchNone filter matched a deal")
	}
}

func TestDealScopeIsDeterministic(t *testing.T) {
	r, _ := newScopeFixture()
	ctx := context.Background()
	first := r.DealScope(ctx, "lead-west", RoleRegionalLead, "org-1")
	second := r.DealScope(ctx, "lead-west", RoleRegionalLead, "org-1")
	if first != second {
		t.Fatalf("identical inputs produced different filters: %+v vs %+v", first, second)
	}
}

func TestFilterNeverMatchesAcrossOrgs(t *testing.T) {
	filters := []Filter{
		{OrgID: "org-1"},
		{OrgID: "org-1", RegionID: "region-west"},
		{OrgID: "org-1", LeadUserID: "u", AssignedUserID: "u"},
	}
	foreign := DealRef{ID: "dx", OrgID: "org-2", RegionID: "region-west", DealLeadID: "u"}
	for _, f := range filters {
		if f.Matches(foreign, true) {
			t.Fatalf("filter %+v matched a deal from another org", f)
		}
	}
}

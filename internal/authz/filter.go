package authz

// DealRef carries the deal attributes scope decisions depend on. Empty
// RegionID and DealLeadID mean the deal has no region or lead on file.
type DealRef struct {
	ID         string
	OrgID      string
	RegionID   string
	DealLeadID string
}

// Filter is a declarative access boundary over deals. OrgID is always
// required. With no clause fields set the filter is organization-wide (admin
// scope). When any of RegionID, LeadUserID or AssignedUserID is set, a deal
// must satisfy at least one of them. MatchNone matches nothing and is the
// fail-closed result for unrecognized roles.
//
// The filter is returned as data, not executed: the query layer translates it
// into SQL, and Matches is the reference in-memory evaluation. A Filter is a
// plain value, so identical inputs produce identical, comparable filters.
type Filter struct {
	OrgID          string
	RegionID       string
	LeadUserID     string
	AssignedUserID string
	MatchNone      bool
}

// Narrowed reports whether the filter carries any narrowing clause.
func (f Filter) Narrowed() bool {
	return f.RegionID != "" || f.LeadUserID != "" || f.AssignedUserID != ""
}

// Matches evaluates the filter against a single deal. activeAssignment tells
// whether the scoped user holds an active building assignment on the deal;
// callers must report inactive assignments as false.
func (f Filter) Matches(deal DealRef, activeAssignment bool) bool {
	if f.MatchNone {
		return false
	}
	if f.OrgID == "" || deal.OrgID != f.OrgID {
		return false
	}
	if !f.Narrowed() {
		return true
	}
	if f.RegionID != "" && deal.RegionID == f.RegionID {
		return true
	}
	if f.LeadUserID != "" && deal.DealLeadID != "" && deal.DealLeadID == f.LeadUserID {
		return true
	}
	if f.AssignedUserID != "" && activeAssignment {
		return true
	}
	return false
}

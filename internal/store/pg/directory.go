package pg

import (
	"context"
	"database/sql"
	"errors"

	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
)

// FindUserRegion implements authz.Directory. An unknown user resolves to an
// empty region rather than an error so the caller's scope narrows.
func (s *Store) FindUserRegion(ctx context.Context, userID string) (string, error) {
	var region string
	err := s.db.QueryRowContext(ctx,
		`select coalesce(region_id, '') from users where id = $1`, userID).Scan(&region)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return region, nil
}

// FindDeal implements authz.Directory.
func (s *Store) FindDeal(ctx context.Context, dealID string) (authz.DealRef, error) {
	var ref authz.DealRef
	err := s.db.QueryRowContext(ctx,
		`select id, org_id, coalesce(region_id, ''), coalesce(deal_lead_id, '') from deals where id = $1`,
		dealID).Scan(&ref.ID, &ref.OrgID, &ref.RegionID, &ref.DealLeadID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.DealRef{}, deals.ErrNotFound
	}
	if err != nil {
		return authz.DealRef{}, err
	}
	return ref, nil
}

// HasActiveAssignment implements authz.Directory.
func (s *Store) HasActiveAssignment(ctx context.Context, userID, dealID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`select exists (select 1 from building_assignments where deal_id = $1 and user_id = $2 and is_active)`,
		dealID, userID).Scan(&active)
	if err != nil {
		return false, err
	}
	return active, nil
}

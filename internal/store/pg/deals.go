package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
	"dealdesk.health/internal/ids"
)

const dealColumns = `id, org_id, coalesce(region_id, ''), name, coalesce(facility_type, ''), status, coalesce(deal_lead_id, ''), created_at, updated_at, archived_at`

func scanDeal(row interface{ Scan(...any) error }) (deals.Deal, error) {
	var d deals.Deal
	var archivedAt sql.NullTime
	err := row.Scan(&d.ID, &d.OrgID, &d.RegionID, &d.Name, &d.FacilityType, &d.Status, &d.DealLeadID, &d.CreatedAt, &d.UpdatedAt, &archivedAt)
	if err != nil {
		return deals.Deal{}, err
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		d.ArchivedAt = &t
	}
	return d, nil
}

func (s *Store) CreateDeal(ctx context.Context, d deals.Deal) (deals.Deal, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return deals.Deal{}, fmt.Errorf("%w: deal name is required", deals.ErrInvalidInput)
	}
	if strings.TrimSpace(d.OrgID) == "" {
		return deals.Deal{}, fmt.Errorf("%w: org id is required", deals.ErrInvalidInput)
	}
	if d.Status == "" {
		d.Status = deals.StatusProspect
	}
	if !deals.ValidStatus(d.Status) {
		return deals.Deal{}, fmt.Errorf("%w: unsupported status %s", deals.ErrInvalidInput, d.Status)
	}

	d.ID = ids.New()
	row := s.db.QueryRowContext(ctx,
		`insert into deals (id, org_id, region_id, name, facility_type, status, deal_lead_id)
		 values ($1, $2, $3, $4, $5, $6, $7)
		 returning `+dealColumns,
		d.ID, d.OrgID, nullIfEmpty(d.RegionID), d.Name, nullIfEmpty(d.FacilityType), d.Status, nullIfEmpty(d.DealLeadID))
	out, err := scanDeal(row)
	if err != nil {
		return deals.Deal{}, mapDealError(err)
	}
	return out, nil
}

// ListDeals translates the scope filter into SQL. The filter is trusted as-is;
// the resolver already narrowed it to what the caller may see.
func (s *Store) ListDeals(ctx context.Context, f authz.Filter, includeArchived bool) ([]deals.Deal, error) {
	if f.MatchNone || f.OrgID == "" {
		return nil, nil
	}

	query := `select ` + dealColumns + ` from deals where org_id = $1`
	args := []any{f.OrgID}
	if !includeArchived {
		query += ` and archived_at is null`
	}
	if f.Narrowed() {
		var clauses []string
		if f.RegionID != "" {
			args = append(args, f.RegionID)
			clauses = append(clauses, fmt.Sprintf("region_id = $%d", len(args)))
		}
		if f.LeadUserID != "" {
			args = append(args, f.LeadUserID)
			clauses = append(clauses, fmt.Sprintf("deal_lead_id = $%d", len(args)))
		}
		if f.AssignedUserID != "" {
			args = append(args, f.AssignedUserID)
			clauses = append(clauses, fmt.Sprintf(
				"exists (select 1 from building_assignments ba where ba.deal_id = deals.id and ba.user_id = $%d and ba.is_active)", len(args)))
		}
		query += " and (" + strings.Join(clauses, " or ") + ")"
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deals.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDeal(ctx context.Context, id string) (deals.Deal, error) {
	row := s.db.QueryRowContext(ctx, `select `+dealColumns+` from deals where id = $1`, id)
	d, err := scanDeal(row)
	if err != nil {
		return deals.Deal{}, mapDealError(err)
	}
	return d, nil
}

func (s *Store) UpdateDeal(ctx context.Context, id string, upd deals.DealUpdate) (deals.Deal, error) {
	var sets []string
	var args []any
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return deals.Deal{}, fmt.Errorf("%w: deal name is required", deals.ErrInvalidInput)
		}
		args = append(args, name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.FacilityType != nil {
		args = append(args, nullIfEmpty(*upd.FacilityType))
		sets = append(sets, fmt.Sprintf("facility_type = $%d", len(args)))
	}
	if upd.Status != nil {
		if !deals.ValidStatus(*upd.Status) {
			return deals.Deal{}, fmt.Errorf("%w: unsupported status %s", deals.ErrInvalidInput, *upd.Status)
		}
		args = append(args, *upd.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if upd.RegionID != nil {
		args = append(args, nullIfEmpty(*upd.RegionID))
		sets = append(sets, fmt.Sprintf("region_id = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetDeal(ctx, id)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`update deals set %s where id = $%d returning `+dealColumns,
		strings.Join(sets, ", "), len(args))
	row := s.db.QueryRowContext(ctx, query, args...)
	d, err := scanDeal(row)
	if err != nil {
		return deals.Deal{}, mapDealError(err)
	}
	return d, nil
}

func (s *Store) ArchiveDeal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update deals set archived_at = now(), updated_at = now() where id = $1 and archived_at is null`, id)
	if err != nil {
		return mapDealError(err)
	}
	return s.checkArchiveOutcome(ctx, res, id, "deal already archived")
}

func (s *Store) RestoreDeal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update deals set archived_at = null, updated_at = now() where id = $1 and archived_at is not null`, id)
	if err != nil {
		return mapDealError(err)
	}
	return s.checkArchiveOutcome(ctx, res, id, "deal is not archived")
}

// checkArchiveOutcome distinguishes a missing deal from one already in the
// target archive state when the guarded update touched no rows.
func (s *Store) checkArchiveOutcome(ctx context.Context, res sql.Result, id, conflictMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists (select 1 from deals where id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return deals.ErrNotFound
	}
	return fmt.Errorf("%w: %s", deals.ErrConflict, conflictMsg)
}

func (s *Store) SetDealLead(ctx context.Context, dealID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update deals set deal_lead_id = $2, updated_at = now() where id = $1`,
		dealID, nullIfEmpty(userID))
	if err != nil {
		return mapDealError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return deals.ErrNotFound
	}
	return nil
}

func (s *Store) SetAssignment(ctx context.Context, dealID, userID string, active bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", deals.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`insert into building_assignments (deal_id, user_id, is_active)
		 values ($1, $2, $3)
		 on conflict (deal_id, user_id) do update set is_active = excluded.is_active`,
		dealID, userID, active)
	if err != nil {
		return mapDealError(err)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, dealID string) ([]deals.BuildingAssignment, error) {
	if err := s.requireDeal(ctx, dealID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select deal_id, user_id, is_active, created_at from building_assignments where deal_id = $1 order by user_id`,
		dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deals.BuildingAssignment
	for rows.Next() {
		var a deals.BuildingAssignment
		if err := rows.Scan(&a.DealID, &a.UserID, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Checklist(ctx context.Context, dealID string) ([]deals.ChecklistItem, error) {
	if err := s.requireDeal(ctx, dealID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, deal_id, title, done, updated_at from checklist_items where deal_id = $1 order by id`,
		dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []deals.ChecklistItem{}
	for rows.Next() {
		var item deals.ChecklistItem
		if err := rows.Scan(&item.ID, &item.DealID, &item.Title, &item.Done, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) AddChecklistItem(ctx context.Context, dealID, title string) (deals.ChecklistItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return deals.ChecklistItem{}, fmt.Errorf("%w: title is required", deals.ErrInvalidInput)
	}
	item := deals.ChecklistItem{ID: ids.New(), DealID: dealID, Title: title, UpdatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`insert into checklist_items (id, deal_id, title, done, updated_at) values ($1, $2, $3, false, $4)`,
		item.ID, item.DealID, item.Title, item.UpdatedAt)
	if err != nil {
		return deals.ChecklistItem{}, mapDealError(err)
	}
	return item, nil
}

func (s *Store) UpdateChecklistItem(ctx context.Context, dealID, itemID string, done bool) (deals.ChecklistItem, error) {
	row := s.db.QueryRowContext(ctx,
		`update checklist_items set done = $3, updated_at = now()
		 where deal_id = $1 and id = $2
		 returning id, deal_id, title, done, updated_at`,
		dealID, itemID, done)
	var item deals.ChecklistItem
	if err := row.Scan(&item.ID, &item.DealID, &item.Title, &item.Done, &item.UpdatedAt); err != nil {
		return deals.ChecklistItem{}, mapDealError(err)
	}
	return item, nil
}

func (s *Store) requireDeal(ctx context.Context, dealID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists (select 1 from deals where id = $1)`, dealID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return deals.ErrNotFound
	}
	return nil
}

func mapDealError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return deals.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", deals.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return deals.ErrNotFound
		}
	}
	return err
}

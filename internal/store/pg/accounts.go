package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
)

const accountColumns = `id, org_id, email, role, coalesce(region_id, ''), password_hash, status, created_at, updated_at`

// FindByEmail implements auth.AccountStore. Email lookup is case-insensitive.
func (s *Store) FindByEmail(ctx context.Context, email string) (auth.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var a auth.Account
	err := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where lower(email) = $1`, email).
		Scan(&a.ID, &a.OrgID, &a.Email, &a.Role, &a.RegionID, &a.PasswordHash, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return a, nil
}

// SetRole implements auth.AccountStore. The org predicate keeps a user in
// another tenant out of reach; a mismatch looks like a missing user.
func (s *Store) SetRole(ctx context.Context, orgID, userID string, role authz.Role) error {
	res, err := s.db.ExecContext(ctx,
		`update users set role = $3, updated_at = now() where id = $1 and org_id = $2`,
		userID, orgID, string(role))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

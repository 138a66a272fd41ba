package auth

import (
	"context"
	"errors"
	"time"

	"dealdesk.health/internal/authz"
)

var (
	// ErrNotFound indicates the account does not exist.
	ErrNotFound = errors.New("auth: not found")
	// ErrInvalidCredentials indicates a bad email/password combination.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Account is a user record as the authentication layer sees it. Role is the
// raw stored value; convert with authz.ParseRole at the point of use.
type Account struct {
	ID           string
	OrgID        string
	Email        string
	Role         string
	RegionID     string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountStore is the user directory consumed by login and role management.
// Role changes are tenant-scoped: SetRole only touches an account whose
// organization matches orgID, so a caller can never reach across orgs.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	SetRole(ctx context.Context, orgID, userID string, role authz.Role) error
}

// Authenticate checks the password against the account and rejects disabled
// accounts. It returns ErrInvalidCredentials for any mismatch so callers
// cannot distinguish a wrong password from a missing user.
func Authenticate(ctx context.Context, store AccountStore, email, password string) (Account, error) {
	account, err := store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if account.Status != StatusActive {
		return Account{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(account.PasswordHash, password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

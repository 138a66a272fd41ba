package auth

import (
	"context"

	"dealdesk.health/internal/authz"
)

// Session is the authenticated caller attached to a request context. Role has
// already been through authz.ParseRole; an unrecognized claim leaves it empty,
// which carries no permissions.
type Session struct {
	UserID string
	Role   authz.Role
	OrgID  string
}

type sessionContextKey struct{}

// ContextWithSession attaches the authenticated session to the context.
func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &session)
}

// SessionFromContext extracts the authenticated session from the context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}

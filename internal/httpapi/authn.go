package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		// An unrecognized role claim still authenticates; it just carries no
		// permissions, so every check downstream denies.
		role, _ := authz.ParseRole(claims.Role)
		session := auth.Session{
			UserID: claims.Subject,
			Role:   role,
			OrgID:  claims.OrgID,
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithSession(r.Context(), session)))
	})
}

// requirePermission loads the session and checks the permission against the
// role catalog. It writes the error response itself and reports whether the
// caller may proceed.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm authz.Permission) (auth.Session, bool) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Session{}, false
	}
	if !authz.HasPermission(session.Role, perm) {
		obs.CountAuthzDenial("permission")
		writeError(w, r, http.StatusForbidden, "permission denied")
		return auth.Session{}, false
	}
	return session, true
}

// requireDealAccess runs the point-level scope check after the permission
// gate. Scope denials are indistinguishable from cross-org probes, so both
// produce the same 403.
func (a *API) requireDealAccess(w http.ResponseWriter, r *http.Request, session auth.Session, dealID string) bool {
	if a.resolver.CanAccessDeal(r.Context(), session.UserID, session.Role, session.OrgID, dealID) {
		return true
	}
	obs.CountAuthzDenial("scope")
	writeError(w, r, http.StatusForbidden, "deal access denied")
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

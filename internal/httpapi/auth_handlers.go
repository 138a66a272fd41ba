package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"dealdesk.health/internal/audit"
	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
	OrgID     string    `json:"org_id"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.accounts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "login is not configured")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	account, err := auth.Authenticate(r.Context(), a.accounts, email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	role, _ := authz.ParseRole(account.Role)
	token, err := auth.GenerateToken(account.ID, role, account.OrgID, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":    account.ID,
		"org_id":     account.OrgID,
		"role":       string(role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      string(role),
		OrgID:     account.OrgID,
	})
}

// handleMyPermissions returns the caller's allow-set so the SPA can hide
// controls. Advisory only: every mutation is re-checked server-side.
func (a *API) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	set := authz.PermissionsFor(session.Role)
	perms := make([]string, 0, len(set))
	for perm := range set {
		perms = append(perms, string(perm))
	}
	sort.Strings(perms)

	writeJSON(w, http.StatusOK, map[string]any{
		"role":        string(session.Role),
		"permissions": perms,
	})
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"dealdesk.health/internal/audit"
	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

// handleUserResource routes /v1/users/{id}/role.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.setUserRole(w, r, parts[0])
}

func (a *API) setUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	session, ok := a.requirePermission(w, r, authz.PermUsersManageRoles)
	if !ok {
		return
	}
	if a.accounts == nil {
		writeError(w, r, http.StatusServiceUnavailable, "user management is not configured")
		return
	}

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := authz.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	// Scoped to the caller's org; a user in another tenant is a 404.
	if err := a.accounts.SetRole(r.Context(), session.OrgID, userID, role); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "users.role.update", map[string]any{
		"target_user_id": userID,
		"new_role":       string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

package httpapi

import (
	"net/http"
	"strings"

	"dealdesk.health/internal/audit"
	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
	"dealdesk.health/internal/stream"
)

type createDealRequest struct {
	Name         string `json:"name"`
	FacilityType string `json:"facility_type"`
	RegionID     string `json:"region_id"`
	Status       string `json:"status"`
}

type updateDealRequest struct {
	Name         *string `json:"name"`
	FacilityType *string `json:"facility_type"`
	Status       *string `json:"status"`
	RegionID     *string `json:"region_id"`
}

type setLeadRequest struct {
	UserID string `json:"user_id"`
}

type setAssignmentRequest struct {
	Active bool `json:"active"`
}

type addChecklistItemRequest struct {
	Title string `json:"title"`
}

type updateChecklistItemRequest struct {
	Done bool `json:"done"`
}

type listDealsResponse struct {
	Items []deals.Deal `json:"items"`
}

func (a *API) handleDealsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listDeals(w, r)
	case http.MethodPost:
		a.createDeal(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleDealResource routes /v1/deals/{id} and its sub-resources.
func (a *API) handleDealResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/deals/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	parts := strings.Split(path, "/")
	dealID := parts[0]
	if dealID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getDeal(w, r, dealID)
		case http.MethodPatch:
			a.updateDeal(w, r, dealID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "archive":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.archiveDeal(w, r, dealID)
	case len(parts) == 2 && parts[1] == "restore":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.restoreDeal(w, r, dealID)
	case len(parts) == 2 && parts[1] == "lead":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.setDealLead(w, r, dealID)
	case len(parts) == 2 && parts[1] == "assignments":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listAssignments(w, r, dealID)
	case len(parts) == 3 && parts[1] == "assignments" && parts[2] != "":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.setAssignment(w, r, dealID, parts[2])
	case len(parts) == 2 && parts[1] == "checklist":
		switch r.Method {
		case http.MethodGet:
			a.getChecklist(w, r, dealID)
		case http.MethodPost:
			a.addChecklistItem(w, r, dealID)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[1] == "checklist" && parts[2] != "":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.updateChecklistItem(w, r, dealID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listDeals(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requirePermission(w, r, authz.PermDealsRead)
	if !ok {
		return
	}
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	if includeArchived {
		if _, ok := a.requirePermission(w, r, authz.PermArchiveView); !ok {
			return
		}
	}

	filter := a.resolver.DealScope(r.Context(), session.UserID, session.Role, session.OrgID)
	items, err := a.deals.ListDeals(r.Context(), filter, includeArchived)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	if items == nil {
		items = []deals.Deal{}
	}
	writeJSON(w, http.StatusOK, listDealsResponse{Items: items})
}

func (a *API) createDeal(w http.ResponseWriter, r *http.Request) {
	session, ok := a.requirePermission(w, r, authz.PermDealsCreate)
	if !ok {
		return
	}
	var req createDealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The organization always comes from the session; a client cannot create
	// a deal in another tenant.
	deal, err := a.deals.CreateDeal(r.Context(), deals.Deal{
		OrgID:        session.OrgID,
		RegionID:     strings.TrimSpace(req.RegionID),
		Name:         req.Name,
		FacilityType: strings.TrimSpace(req.FacilityType),
		Status:       strings.TrimSpace(req.Status),
	})
	if err != nil {
		handleDealsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "deals.create", map[string]any{"deal_id": deal.ID, "name": deal.Name})
	a.publishDealEvent(session, deal, "deals.create")

	w.Header().Set("Location", "/v1/deals/"+deal.ID)
	writeJSON(w, http.StatusCreated, deal)
}

func (a *API) getDeal(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermDealsRead)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	deal, err := a.deals.GetDeal(r.Context(), dealID)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

func (a *API) updateDeal(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermDealsUpdate)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	var req updateDealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	deal, err := a.deals.UpdateDeal(r.Context(), dealID, deals.DealUpdate{
		Name:         req.Name,
		FacilityType: req.FacilityType,
		Status:       req.Status,
		RegionID:     req.RegionID,
	})
	if err != nil {
		handleDealsError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "deals.update", map[string]any{"deal_id": deal.ID})
	a.publishDealEvent(session, deal, "deals.update")
	writeJSON(w, http.StatusOK, deal)
}

func (a *API) archiveDeal(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermDealsArchive)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	if err := a.deals.ArchiveDeal(r.Context(), dealID); err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "deals.archive", map[string]any{"deal_id": dealID})
	a.publishDealEventByID(r, session, dealID, "deals.archive")
	writeJSON(w, http.StatusOK, map[string]any{"status": "archived"})
}

func (a *API) restoreDeal(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermArchiveRestore)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	if err := a.deals.RestoreDeal(r.Context(), dealID); err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "deals.restore", map[string]any{"deal_id": dealID})
	a.publishDealEventByID(r, session, dealID, "deals.restore")
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored"})
}

func (a *API) setDealLead(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermDealsAssignLead)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	var req setLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deals.SetDealLead(r.Context(), dealID, req.UserID); err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "deals.assign_lead", map[string]any{
		"deal_id": dealID,
		"user_id": strings.TrimSpace(req.UserID),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermDealsRead)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	items, err := a.deals.ListAssignments(r.Context(), dealID)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	if items == nil {
		items = []deals.BuildingAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) setAssignment(w http.ResponseWriter, r *http.Request, dealID, userID string) {
	session, ok := a.requirePermission(w, r, authz.PermAssignmentsManage)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	var req setAssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deals.SetAssignment(r.Context(), dealID, userID, req.Active); err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "assignments.set", map[string]any{
		"deal_id": dealID,
		"user_id": userID,
		"active":  req.Active,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func (a *API) getChecklist(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermChecklistsRead)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	items, err := a.deals.Checklist(r.Context(), dealID)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) addChecklistItem(w http.ResponseWriter, r *http.Request, dealID string) {
	session, ok := a.requirePermission(w, r, authz.PermChecklistsUpdate)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	var req addChecklistItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.deals.AddChecklistItem(r.Context(), dealID, req.Title)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "checklists.add_item", map[string]any{
		"deal_id": dealID,
		"item_id": item.ID,
	})
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) updateChecklistItem(w http.ResponseWriter, r *http.Request, dealID, itemID string) {
	session, ok := a.requirePermission(w, r, authz.PermChecklistsUpdate)
	if !ok {
		return
	}
	if !a.requireDealAccess(w, r, session, dealID) {
		return
	}
	var req updateChecklistItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.deals.UpdateChecklistItem(r.Context(), dealID, itemID, req.Done)
	if err != nil {
		handleDealsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "checklists.update_item", map[string]any{
		"deal_id": dealID,
		"item_id": itemID,
		"done":    req.Done,
	})
	writeJSON(w, http.StatusOK, item)
}

func (a *API) publishDealEvent(session auth.Session, deal deals.Deal, action string) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(stream.Event{
		DealID:   deal.ID,
		OrgID:    deal.OrgID,
		Action:   action,
		ActorID:  session.UserID,
		DealName: deal.Name,
	})
}

// publishDealEventByID is used by mutations that do not return the deal body.
func (a *API) publishDealEventByID(r *http.Request, session auth.Session, dealID, action string) {
	if a.stream == nil {
		return
	}
	deal, err := a.deals.GetDeal(r.Context(), dealID)
	if err != nil {
		return
	}
	a.publishDealEvent(session, deal, action)
}

package deals

import (
	"errors"
	"time"
)

// Deal statuses follow the acquisition pipeline stages.
const (
	StatusProspect  = "prospect"
	StatusDiligence = "diligence"
	StatusClosing   = "closing"
	StatusClosed    = "closed"
)

// Deal is a facility acquisition record. RegionID and DealLeadID are empty
// when unset; ArchivedAt is nil for live deals.
type Deal struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	RegionID     string     `json:"region_id,omitempty"`
	Name         string     `json:"name"`
	FacilityType string     `json:"facility_type,omitempty"`
	Status       string     `json:"status"`
	DealLeadID   string     `json:"deal_lead_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the deal has been archived.
func (d Deal) Archived() bool { return d.ArchivedAt != nil }

// BuildingAssignment links a user to a deal as assigned personnel. Only
// active assignments count for access scoping.
type BuildingAssignment struct {
	DealID    string    `json:"deal_id"`
	UserID    string    `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ChecklistItem is one due-diligence task on a deal's checklist.
type ChecklistItem struct {
	ID        string    `json:"id"`
	DealID    string    `json:"deal_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DealUpdate carries optional field updates; nil means "leave unchanged".
type DealUpdate struct {
	Name         *string
	FacilityType *string
	Status       *string
	RegionID     *string
}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("resource conflict")
)

// ValidStatus reports whether status is one of the pipeline stages. Every
// Service implementation rejects writes that fail this check.
func ValidStatus(status string) bool {
	switch status {
	case StatusProspect, StatusDiligence, StatusClosing, StatusClosed:
		return true
	}
	return false
}

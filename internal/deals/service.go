package deals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/ids"
)

// Service defines deal pipeline operations. ListDeals takes the caller's
// scope filter as data and applies it; it never widens access beyond the
// filter. Point-level authorization (may this caller touch this deal) is the
// resolver's job and happens before these calls.
type Service interface {
	CreateDeal(ctx context.Context, d Deal) (Deal, error)
	ListDeals(ctx context.Context, f authz.Filter, includeArchived bool) ([]Deal, error)
	GetDeal(ctx context.Context, id string) (Deal, error)
	UpdateDeal(ctx context.Context, id string, upd DealUpdate) (Deal, error)
	ArchiveDeal(ctx context.Context, id string) error
	RestoreDeal(ctx context.Context, id string) error
	SetDealLead(ctx context.Context, dealID, userID string) error
	SetAssignment(ctx context.Context, dealID, userID string, active bool) error
	ListAssignments(ctx context.Context, dealID string) ([]BuildingAssignment, error)
	Checklist(ctx context.Context, dealID string) ([]ChecklistItem, error)
	AddChecklistItem(ctx context.Context, dealID, title string) (ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, dealID, itemID string, done bool) (ChecklistItem, error)
}

// InMemory implements Service and authz.Directory with in-process concurrency
// safety. It backs handler tests and the DSN-less dev mode.
type InMemory struct {
	mu          sync.RWMutex
	deals       map[string]*Deal
	assignments map[string]map[string]*BuildingAssignment // dealID -> userID
	checklists  map[string][]*ChecklistItem               // dealID -> items
	regions     map[string]string                         // userID -> regionID
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		deals:       make(map[string]*Deal),
		assignments: make(map[string]map[string]*BuildingAssignment),
		checklists:  make(map[string][]*ChecklistItem),
		regions:     make(map[string]string),
	}
}

var _ Service = (*InMemory)(nil)
var _ authz.Directory = (*InMemory)(nil)

func (s *InMemory) CreateDeal(_ context.Context, d Deal) (Deal, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return Deal{}, fmt.Errorf("%w: deal name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.OrgID) == "" {
		return Deal{}, fmt.Errorf("%w: org id is required", ErrInvalidInput)
	}
	if d.Status == "" {
		d.Status = StatusProspect
	}
	if !ValidStatus(d.Status) {
		return Deal{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, d.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	d.ID = ids.New()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.ArchivedAt = nil
	s.deals[d.ID] = &d
	return d, nil
}

func (s *InMemory) ListDeals(_ context.Context, f authz.Filter, includeArchived bool) ([]Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Deal
	for _, d := range s.deals {
		if d.Archived() && !includeArchived {
			continue
		}
		active := false
		if f.AssignedUserID != "" {
			if a, ok := s.assignments[d.ID][f.AssignedUserID]; ok {
				active = a.IsActive
			}
		}
		if !f.Matches(dealRef(d), active) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) GetDeal(_ context.Context, id string) (Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[id]
	if !ok {
		return Deal{}, ErrNotFound
	}
	return *d, nil
}

func (s *InMemory) UpdateDeal(_ context.Context, id string, upd DealUpdate) (Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return Deal{}, ErrNotFound
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Deal{}, fmt.Errorf("%w: deal name is required", ErrInvalidInput)
		}
		d.Name = name
	}
	if upd.FacilityType != nil {
		d.FacilityType = strings.TrimSpace(*upd.FacilityType)
	}
	if upd.Status != nil {
		if !ValidStatus(*upd.Status) {
			return Deal{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, *upd.Status)
		}
		d.Status = *upd.Status
	}
	if upd.RegionID != nil {
		d.RegionID = strings.TrimSpace(*upd.RegionID)
	}
	d.UpdatedAt = time.Now().UTC()
	return *d, nil
}

func (s *InMemory) ArchiveDeal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return ErrNotFound
	}
	if d.Archived() {
		return fmt.Errorf("%w: deal already archived", ErrConflict)
	}
	now := time.Now().UTC()
	d.ArchivedAt = &now
	d.UpdatedAt = now
	return nil
}

func (s *InMemory) RestoreDeal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return ErrNotFound
	}
	if !d.Archived() {
		return fmt.Errorf("%w: deal is not archived", ErrConflict)
	}
	d.ArchivedAt = nil
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) SetDealLead(_ context.Context, dealID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealID]
	if !ok {
		return ErrNotFound
	}
	d.DealLeadID = strings.TrimSpace(userID)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) SetAssignment(_ context.Context, dealID, userID string, active bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[dealID]; !ok {
		return ErrNotFound
	}
	byUser, ok := s.assignments[dealID]
	if !ok {
		byUser = make(map[string]*BuildingAssignment)
		s.assignments[dealID] = byUser
	}
	if a, ok := byUser[userID]; ok {
		a.IsActive = active
		return nil
	}
	byUser[userID] = &BuildingAssignment{
		DealID:    dealID,
		UserID:    userID,
		IsActive:  active,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *InMemory) ListAssignments(_ context.Context, dealID string) ([]BuildingAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.deals[dealID]; !ok {
		return nil, ErrNotFound
	}
	var out []BuildingAssignment
	for _, a := range s.assignments[dealID] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *InMemory) Checklist(_ context.Context, dealID string) ([]ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.deals[dealID]; !ok {
		return nil, ErrNotFound
	}
	items := s.checklists[dealID]
	out := make([]ChecklistItem, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *InMemory) AddChecklistItem(_ context.Context, dealID, title string) (ChecklistItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ChecklistItem{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[dealID]; !ok {
		return ChecklistItem{}, ErrNotFound
	}
	item := &ChecklistItem{
		ID:        ids.New(),
		DealID:    dealID,
		Title:     title,
		UpdatedAt: time.Now().UTC(),
	}
	s.checklists[dealID] = append(s.checklists[dealID], item)
	return *item, nil
}

func (s *InMemory) UpdateChecklistItem(_ context.Context, dealID, itemID string, done bool) (ChecklistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.checklists[dealID] {
		if item.ID == itemID {
			item.Done = done
			item.UpdatedAt = time.Now().UTC()
			return *item, nil
		}
	}
	return ChecklistItem{}, ErrNotFound
}

// SetUserRegion records a user's region for directory lookups.
func (s *InMemory) SetUserRegion(userID, regionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[userID] = regionID
}

// FindUserRegion implements authz.Directory.
func (s *InMemory) FindUserRegion(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regions[userID], nil
}

// FindDeal implements authz.Directory.
func (s *InMemory) FindDeal(_ context.Context, dealID string) (authz.DealRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deals[dealID]
	if !ok {
		return authz.DealRef{}, ErrNotFound
	}
	return dealRef(d), nil
}

// HasActiveAssignment implements authz.Directory.
func (s *InMemory) HasActiveAssignment(_ context.Context, userID, dealID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[dealID][userID]
	return ok && a.IsActive, nil
}

func dealRef(d *Deal) authz.DealRef {
	return authz.DealRef{
		ID:         d.ID,
		OrgID:      d.OrgID,
		RegionID:   d.RegionID,
		DealLeadID: d.DealLeadID,
	}
}

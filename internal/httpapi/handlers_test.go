package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"dealdesk.health/internal/auth"
	"dealdesk.health/internal/authz"
	"dealdesk.health/internal/deals"
	"dealdesk.health/internal/stream"
)

type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string]auth.Account // keyed by lowercased email
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{accounts: make(map[string]auth.Account)}
}

func (s *stubAccounts) add(t *testing.T, account auth.Account, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	account.PasswordHash = hash
	if account.Status == "" {
		account.Status = auth.StatusActive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(account.Email)] = account
}

func (s *stubAccounts) FindByEmail(_ context.Context, email string) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.Account{}, auth.ErrNotFound
	}
	return account, nil
}

func (s *stubAccounts) SetRole(_ context.Context, orgID, userID string, role authz.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, account := range s.accounts {
		if account.ID == userID && account.OrgID == orgID {
			account.Role = string(role)
			s.accounts[email] = account
			return nil
		}
	}
	return auth.ErrNotFound
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) (*apiClient, *deals.InMemory, *stubAccounts) {
	t.Helper()

	t.Setenv("DEALDESK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := deals.NewInMemory()
	accounts := newStubAccounts()
	api := New(ReadyProbe{}, "test", store, store, accounts, stream.New())
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}, store, accounts
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func bearerFor(t *testing.T, userID string, role authz.Role, orgID string) map[string]string {
	t.Helper()
	token, err := auth.GenerateToken(userID, role, orgID, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestDealLifecycleAsAdmin(t *testing.T) {
	api, _, _ := newTestAPI(t)
	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")

	resp := api.post("/v1/deals", map[string]any{
		"name":          "Sunrise Care Campus",
		"facility_type": "snf",
		"region_id":     "region-west",
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Location") == "" {
		t.Fatal("expected Location header")
	}
	deal := decode[map[string]any](t, resp)
	dealID := deal["id"].(string)
	if deal["org_id"] != "org-1" {
		t.Fatalf("deal org should come from session, got %v", deal["org_id"])
	}

	resp = api.do(http.MethodPatch, "/v1/deals/"+dealID, map[string]any{"status": "diligence"}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected update status: %d", resp.StatusCode)
	}
	updated := decode[map[string]any](t, resp)
	if updated["status"] != "diligence" {
		t.Fatalf("unexpected status after update: %v", updated["status"])
	}

	resp = api.post("/v1/deals/"+dealID+"/archive", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected archive status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Archiving twice conflicts.
	resp = api.post("/v1/deals/"+dealID+"/archive", nil, admin)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second archive, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Archived deal hidden from the default listing.
	resp = api.get("/v1/deals", nil, admin)
	listed := decode[listDealsResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("expected archived deal hidden, got %d items", len(listed.Items))
	}

	resp = api.get("/v1/deals", url.Values{"include_archived": []string{"true"}}, admin)
	listed = decode[listDealsResponse](t, resp)
	if len(listed.Items) != 1 {
		t.Fatalf("expected archived deal visible, got %d items", len(listed.Items))
	}

	resp = api.post("/v1/deals/"+dealID+"/restore", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected restore status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestScopeFiltersDealList(t *testing.T) {
	api, store, _ := newTestAPI(t)
	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")

	resp := api.post("/v1/deals", map[string]any{"name": "Assigned Deal"}, admin)
	assigned := decode[map[string]any](t, resp)
	assignedID := assigned["id"].(string)

	resp = api.post("/v1/deals", map[string]any{"name": "Other Deal"}, admin)
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/deals/"+assignedID+"/assignments/member-1", map[string]any{"active": true}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected assignment status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	member := bearerFor(t, "member-1", authz.RoleTeamMember, "org-1")
	resp = api.get("/v1/deals", nil, member)
	listed := decode[listDealsResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].ID != assignedID {
		t.Fatalf("member should see only the assigned deal: %+v", listed.Items)
	}

	// Admin sees both.
	resp = api.get("/v1/deals", nil, admin)
	listed = decode[listDealsResponse](t, resp)
	if len(listed.Items) != 2 {
		t.Fatalf("admin should see 2 deals, got %d", len(listed.Items))
	}

	// Deactivated assignment drops the deal from the member's view.
	resp = api.do(http.MethodPut, "/v1/deals/"+assignedID+"/assignments/member-1", map[string]any{"active": false}, admin)
	resp.Body.Close()
	resp = api.get("/v1/deals", nil, member)
	listed = decode[listDealsResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("inactive assignment must not grant visibility: %+v", listed.Items)
	}

	// Regional lead with a region sees region deals without assignment.
	store.SetUserRegion("lead-west", "region-west")
	resp = api.do(http.MethodPatch, "/v1/deals/"+assignedID, map[string]any{"region_id": "region-west"}, admin)
	resp.Body.Close()
	lead := bearerFor(t, "lead-west", authz.RoleRegionalLead, "org-1")
	resp = api.get("/v1/deals", nil, lead)
	listed = decode[listDealsResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].ID != assignedID {
		t.Fatalf("regional lead should see the region deal: %+v", listed.Items)
	}
}

func TestPointCheckBlocksUnassignedMember(t *testing.T) {
	api, _, _ := newTestAPI(t)
	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")

	resp := api.post("/v1/deals", map[string]any{"name": "Private Deal"}, admin)
	deal := decode[map[string]any](t, resp)
	dealID := deal["id"].(string)

	member := bearerFor(t, "member-1", authz.RoleTeamMember, "org-1")
	resp = api.get("/v1/deals/"+dealID, nil, member)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unassigned member, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCrossOrgDealIsForbiddenEvenForAdmin(t *testing.T) {
	api, _, _ := newTestAPI(t)
	admin1 := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")

	resp := api.post("/v1/deals", map[string]any{"name": "Org One Deal"}, admin1)
	deal := decode[map[string]any](t, resp)
	dealID := deal["id"].(string)

	admin2 := bearerFor(t, "admin-2", authz.RoleAdmin, "org-2")
	resp = api.get("/v1/deals/"+dealID, nil, admin2)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 across orgs, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/deals", nil, admin2)
	listed := decode[listDealsResponse](t, resp)
	if len(listed.Items) != 0 {
		t.Fatalf("other org's deals must not be listed: %+v", listed.Items)
	}
}

func TestPermissionDenied(t *testing.T) {
	api, _, _ := newTestAPI(t)
	viewer := bearerFor(t, "viewer-1", authz.RoleViewer, "org-1")

	resp := api.post("/v1/deals", map[string]any{"name": "Nope"}, viewer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer create, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownRoleAuthenticatesButIsDenied(t *testing.T) {
	api, _, _ := newTestAPI(t)
	ghost := bearerFor(t, "ghost-1", authz.Role("chief_vibes_officer"), "org-1")

	resp := api.get("/v1/deals", nil, ghost)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unknown role should be denied, not rejected as unauthenticated: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChecklistFlow(t *testing.T) {
	api, _, _ := newTestAPI(t)
	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")

	resp := api.post("/v1/deals", map[string]any{"name": "Checklist Deal"}, admin)
	deal := decode[map[string]any](t, resp)
	dealID := deal["id"].(string)

	resp = api.post("/v1/deals/"+dealID+"/checklist", map[string]any{"title": "Collect licenses"}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected add item status: %d", resp.StatusCode)
	}
	item := decode[map[string]any](t, resp)
	itemID := item["id"].(string)

	resp = api.do(http.MethodPatch, "/v1/deals/"+dealID+"/checklist/"+itemID, map[string]any{"done": true}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected update item status: %d", resp.StatusCode)
	}
	updated := decode[map[string]any](t, resp)
	if updated["done"] != true {
		t.Fatalf("item should be done: %v", updated["done"])
	}

	resp = api.get("/v1/deals/"+dealID+"/checklist", nil, admin)
	payload := decode[map[string]any](t, resp)
	items := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 checklist item, got %d", len(items))
	}
}

func TestLoginAndPermissionsFlow(t *testing.T) {
	api, _, accounts := newTestAPI(t)
	accounts.add(t, auth.Account{
		ID:    "user-1",
		OrgID: "org-1",
		Email: "lead@example.org",
		Role:  "deal_lead",
	}, "s3cret-pass")

	resp := api.post("/v1/auth/login", map[string]any{
		"email":    "lead@example.org",
		"password": "s3cret-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	login := decode[loginResponse](t, resp)
	if login.Token == "" || login.Role != "deal_lead" || login.OrgID != "org-1" {
		t.Fatalf("unexpected login payload: %+v", login)
	}

	authHeader := map[string]string{"Authorization": "Bearer " + login.Token}
	resp = api.get("/v1/me/permissions", nil, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected permissions status: %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	perms := payload["permissions"].([]any)
	found := false
	for _, p := range perms {
		if p == "deals:read" {
			found = true
		}
		if p == "users:manage-roles" {
			t.Fatal("deal lead must not hold users:manage-roles")
		}
	}
	if !found {
		t.Fatalf("expected deals:read in %v", perms)
	}

	// Wrong password.
	resp = api.post("/v1/auth/login", map[string]any{
		"email":    "lead@example.org",
		"password": "wrong",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSetUserRole(t *testing.T) {
	api, _, accounts := newTestAPI(t)
	accounts.add(t, auth.Account{
		ID:    "user-1",
		OrgID: "org-1",
		Email: "member@example.org",
		Role:  "team_member",
	}, "pw")

	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")
	resp := api.do(http.MethodPut, "/v1/users/user-1/role", map[string]any{"role": "deal_lead"}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	account, err := accounts.FindByEmail(context.Background(), "member@example.org")
	if err != nil || account.Role != "deal_lead" {
		t.Fatalf("role not updated: %+v err=%v", account, err)
	}

	// Unknown role values are rejected before hitting the store.
	resp = api.do(http.MethodPut, "/v1/users/user-1/role", map[string]any{"role": "emperor"}, admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	viewer := bearerFor(t, "viewer-1", authz.RoleViewer, "org-1")
	resp = api.do(http.MethodPut, "/v1/users/user-1/role", map[string]any{"role": "viewer"}, viewer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSetUserRoleCannotCrossOrgs(t *testing.T) {
	api, _, accounts := newTestAPI(t)
	accounts.add(t, auth.Account{
		ID:    "victim-1",
		OrgID: "org-2",
		Email: "victim@example.org",
		Role:  "viewer",
	}, "pw")

	// An org-1 admin must not be able to touch an org-2 account, let alone
	// escalate it.
	admin := bearerFor(t, "admin-1", authz.RoleAdmin, "org-1")
	resp := api.do(http.MethodPut, "/v1/users/victim-1/role", map[string]any{"role": "admin"}, admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-org role change, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	account, err := accounts.FindByEmail(context.Background(), "victim@example.org")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if account.Role != "viewer" {
		t.Fatalf("victim role must be unchanged, got %q", account.Role)
	}

	// Same-org admin still succeeds.
	admin2 := bearerFor(t, "admin-2", authz.RoleAdmin, "org-2")
	resp = api.do(http.MethodPut, "/v1/users/victim-1/role", map[string]any{"role": "team_member"}, admin2)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for same-org role change, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	api, _, _ := newTestAPI(t)

	resp := api.get("/v1/deals", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatal("expected error message")
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	api, _, _ := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

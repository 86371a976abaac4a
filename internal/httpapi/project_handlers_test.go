package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

// seedProject inserts a project owned by head, seeding its PROJECT_HEAD
// membership through the store.
func (e *testEnv) seedProject(name string, head *auth.Account) *auth.Project {
	e.t.Helper()
	now := time.Now().UTC()
	p := &auth.Project{
		ID:          ids.New(),
		Name:        name,
		DisplayName: name,
		CreatedBy:   head.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Projects().Create(context.Background(), p); err != nil {
		e.t.Fatalf("seed project %s: %v", name, err)
	}
	return p
}

func (e *testEnv) seedMember(project *auth.Project, acct *auth.Account, role auth.ProjectRole) {
	e.t.Helper()
	m := &auth.Membership{
		AccountID: acct.ID,
		ProjectID: project.ID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.Memberships().Add(context.Background(), m); err != nil {
		e.t.Fatalf("seed membership: %v", err)
	}
}

func TestCreateProjectRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedAccount("user@example.com", auth.RoleUser, nil)
	env.seedAccount("manager@example.com", auth.RoleManager, nil)
	admin := env.seedAccount("admin@example.com", auth.RoleAdmin, nil)

	for _, email := range []string{"user@example.com", "manager@example.com"} {
		access, _ := env.login(email)
		resp := env.client.post("/v1/projects", map[string]any{"name": "apollo"}, authHeaders(access))
		wantStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	}

	adminAccess, _ := env.login("admin@example.com")
	resp := env.client.post("/v1/projects", map[string]any{
		"name":         "  Apollo  ",
		"display_name": "Apollo Program",
	}, authHeaders(adminAccess))
	wantStatus(t, resp, http.StatusCreated)
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatal("expected Location header")
	}
	body := decode[map[string]*auth.Project](t, resp)
	project := body["project"]
	if project.Name != "apollo" {
		t.Fatalf("name = %q, want normalized %q", project.Name, "apollo")
	}

	// The creator holds the head seat.
	m, err := env.store.Memberships().Find(context.Background(), admin.ID, project.ID)
	if err != nil {
		t.Fatalf("Find membership: %v", err)
	}
	if m.Role != auth.RoleProjectHead {
		t.Fatalf("creator role = %s, want PROJECT_HEAD", m.Role)
	}

	// Project names are unique.
	resp = env.client.post("/v1/projects", map[string]any{"name": "apollo"}, authHeaders(adminAccess))
	wantStatus(t, resp, http.StatusConflict)
	resp.Body.Close()
}

func TestListProjectsScopedByRole(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedAccount("admin@example.com", auth.RoleAdmin, nil)
	member := env.seedAccount("member@example.com", auth.RoleUser, nil)

	p1 := env.seedProject("apollo", admin)
	env.seedProject("gemini", admin)
	env.seedMember(p1, member, auth.RoleTeamMember)

	adminAccess, _ := env.login("admin@example.com")
	resp := env.client.get("/v1/projects", nil, authHeaders(adminAccess))
	wantStatus(t, resp, http.StatusOK)
	adminView := decode[struct {
		Projects []*auth.Project `json:"projects"`
		Total    int             `json:"total"`
	}](t, resp)
	if adminView.Total != 2 {
		t.Fatalf("admin total = %d, want 2", adminView.Total)
	}

	memberAccess, _ := env.login("member@example.com")
	resp = env.client.get("/v1/projects", nil, authHeaders(memberAccess))
	wantStatus(t, resp, http.StatusOK)
	memberView := decode[struct {
		Projects []*auth.Project `json:"projects"`
		Total    int             `json:"total"`
	}](t, resp)
	if memberView.Total != 1 || memberView.Projects[0].ID != p1.ID {
		t.Fatalf("member view = %+v", memberView)
	}

	// Pagination clamps garbage values.
	resp = env.client.get("/v1/projects", url.Values{"limit": {"-5"}, "offset": {"-1"}}, authHeaders(adminAccess))
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestGetProjectAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	env.seedAccount("outsider@example.com", auth.RoleUser, nil)
	env.seedAccount("admin@example.com", auth.RoleAdmin, nil)
	env.seedAccount("super@example.com", auth.RoleSuperAdmin, nil)

	p := env.seedProject("apollo", head)

	cases := []struct {
		email string
		want  int
	}{
		{"head@example.com", http.StatusOK},
		{"outsider@example.com", http.StatusForbidden},
		{"admin@example.com", http.StatusOK},
		{"super@example.com", http.StatusOK},
	}
	for _, tc := range cases {
		access, _ := env.login(tc.email)
		resp := env.client.get("/v1/projects/"+p.ID, nil, authHeaders(access))
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.email, resp.StatusCode, tc.want)
		}
		resp.Body.Close()
	}

	resp := env.client.get("/v1/projects/not-a-ulid", nil, nil)
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestUpdateProjectHeadOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	member := env.seedAccount("member@example.com", auth.RoleUser, nil)
	env.seedAccount("admin@example.com", auth.RoleAdmin, nil)

	p := env.seedProject("apollo", head)
	env.seedMember(p, member, auth.RoleTeamMember)

	displayName := "Apollo Program"
	payload := map[string]any{"display_name": displayName}

	memberAccess, _ := env.login("member@example.com")
	resp := env.client.put("/v1/projects/"+p.ID, payload, authHeaders(memberAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// The admin read bypass does not extend to writes.
	adminAccess, _ := env.login("admin@example.com")
	resp = env.client.put("/v1/projects/"+p.ID, payload, authHeaders(adminAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	headAccess, _ := env.login("head@example.com")
	resp = env.client.put("/v1/projects/"+p.ID, payload, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	body := decode[map[string]*auth.Project](t, resp)
	if body["project"].DisplayName != displayName {
		t.Fatalf("display name = %q", body["project"].DisplayName)
	}
}

func TestDeleteProjectHeadOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	member := env.seedAccount("member@example.com", auth.RoleUser, nil)

	p := env.seedProject("apollo", head)
	env.seedMember(p, member, auth.RoleProjectManager)

	memberAccess, _ := env.login("member@example.com")
	resp := env.client.delete("/v1/projects/"+p.ID, authHeaders(memberAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	headAccess, _ := env.login("head@example.com")
	resp = env.client.delete("/v1/projects/"+p.ID, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if _, err := env.store.Projects().FindByID(context.Background(), p.ID); err == nil {
		t.Fatal("project should be gone")
	}
}

func TestAddMemberRules(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	candidate := env.seedAccount("candidate@example.com", auth.RoleUser, nil)
	adminAcct := env.seedAccount("admin@example.com", auth.RoleAdmin, nil)

	p := env.seedProject("apollo", head)
	headAccess, _ := env.login("head@example.com")

	// No one is added as head; the seat is seeded at creation.
	resp := env.client.post("/v1/projects/"+p.ID+"/members", map[string]any{
		"account_id": candidate.ID,
		"role":       "PROJECT_HEAD",
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	// Admin accounts stay outside projects.
	resp = env.client.post("/v1/projects/"+p.ID+"/members", map[string]any{
		"account_id": adminAcct.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	// Default role is TEAM_MEMBER.
	resp = env.client.post("/v1/projects/"+p.ID+"/members", map[string]any{
		"account_id": candidate.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusCreated)
	body := decode[map[string]*auth.Membership](t, resp)
	if body["member"].Role != auth.RoleTeamMember {
		t.Fatalf("role = %s, want TEAM_MEMBER", body["member"].Role)
	}

	// Re-adding conflicts.
	resp = env.client.post("/v1/projects/"+p.ID+"/members", map[string]any{
		"account_id": candidate.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	// Members can list the roster.
	resp = env.client.get("/v1/projects/"+p.ID+"/members", nil, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	roster := decode[map[string][]*auth.Membership](t, resp)
	if len(roster["members"]) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster["members"]))
	}
}

func TestAssignManagerSwapsSeat(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	current := env.seedAccount("current@example.com", auth.RoleManager, nil)
	next := env.seedAccount("next@example.com", auth.RoleManager, nil)
	plain := env.seedAccount("plain@example.com", auth.RoleUser, nil)

	p := env.seedProject("apollo", head)
	env.seedMember(p, current, auth.RoleProjectManager)
	env.seedMember(p, next, auth.RoleTeamMember)
	env.seedMember(p, plain, auth.RoleTeamMember)

	headAccess, _ := env.login("head@example.com")

	// The target must hold the MANAGER global role.
	resp := env.client.post("/v1/projects/"+p.ID+"/assign-manager", map[string]any{
		"account_id": plain.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.client.post("/v1/projects/"+p.ID+"/assign-manager", map[string]any{
		"account_id": next.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	body := decode[map[string]*auth.Membership](t, resp)
	if body["member"].Role != auth.RoleProjectManager {
		t.Fatalf("promoted role = %s", body["member"].Role)
	}

	// The previous manager lost the seat.
	demoted, err := env.store.Memberships().Find(context.Background(), current.ID, p.ID)
	if err != nil {
		t.Fatalf("Find demoted: %v", err)
	}
	if demoted.Role != auth.RoleTeamMember {
		t.Fatalf("demoted role = %s, want TEAM_MEMBER", demoted.Role)
	}

	// A target not yet on the roster gets a membership created with the seat.
	ghost := env.seedAccount("ghost@example.com", auth.RoleManager, nil)
	resp = env.client.post("/v1/projects/"+p.ID+"/assign-manager", map[string]any{
		"account_id": ghost.ID,
	}, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	body = decode[map[string]*auth.Membership](t, resp)
	if body["member"].Role != auth.RoleProjectManager {
		t.Fatalf("upserted role = %s", body["member"].Role)
	}
	bumped, err := env.store.Memberships().Find(context.Background(), next.ID, p.ID)
	if err != nil {
		t.Fatalf("Find bumped: %v", err)
	}
	if bumped.Role != auth.RoleTeamMember {
		t.Fatalf("bumped role = %s, want TEAM_MEMBER", bumped.Role)
	}

	// Only the head assigns the seat.
	nextAccess, _ := env.login("next@example.com")
	resp = env.client.post("/v1/projects/"+p.ID+"/assign-manager", map[string]any{
		"account_id": next.ID,
	}, authHeaders(nextAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestRemoveMemberRules(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	manager := env.seedAccount("manager@example.com", auth.RoleManager, nil)
	m1 := env.seedAccount("m1@example.com", auth.RoleUser, nil)
	m2 := env.seedAccount("m2@example.com", auth.RoleUser, nil)

	p := env.seedProject("apollo", head)
	env.seedMember(p, manager, auth.RoleProjectManager)
	env.seedMember(p, m1, auth.RoleTeamMember)
	env.seedMember(p, m2, auth.RoleTeamMember)

	managerAccess, _ := env.login("manager@example.com")
	headAccess, _ := env.login("head@example.com")

	// Team members cannot remove anyone.
	m1Access, _ := env.login("m1@example.com")
	resp := env.client.delete("/v1/projects/"+p.ID+"/members/"+m2.ID, authHeaders(m1Access))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// The head seat cannot be vacated.
	resp = env.client.delete("/v1/projects/"+p.ID+"/members/"+head.ID, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// A project manager may only remove team members, never the head.
	resp = env.client.delete("/v1/projects/"+p.ID+"/members/"+head.ID, authHeaders(managerAccess))
	wantStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = env.client.delete("/v1/projects/"+p.ID+"/members/"+m1.ID, authHeaders(managerAccess))
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// The head may remove the manager.
	resp = env.client.delete("/v1/projects/"+p.ID+"/members/"+manager.ID, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if _, err := env.store.Memberships().Find(context.Background(), manager.ID, p.ID); err == nil {
		t.Fatal("manager membership should be gone")
	}
}

func TestRemoveMemberUnassignsTheirTasks(t *testing.T) {
	env := newTestEnv(t, nil)
	head := env.seedAccount("head@example.com", auth.RoleUser, nil)
	member := env.seedAccount("member@example.com", auth.RoleUser, nil)

	p := env.seedProject("apollo", head)
	env.seedMember(p, member, auth.RoleTeamMember)
	task := env.seedTask(p, "write docs", member.ID)

	headAccess, _ := env.login("head@example.com")
	resp := env.client.delete("/v1/projects/"+p.ID+"/members/"+member.ID, authHeaders(headAccess))
	wantStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	got, err := env.store.Tasks().Find(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Find task: %v", err)
	}
	if got.AssignedTo != "" {
		t.Fatalf("assigned_to = %q, want cleared", got.AssignedTo)
	}
}

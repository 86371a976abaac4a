package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

type updateProjectRequest struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
}

type addMemberRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

type assignManagerRequest struct {
	AccountID string `json:"account_id"`
}

var (
	headOnly       = []auth.ProjectRole{auth.RoleProjectHead}
	headOrManager  = []auth.ProjectRole{auth.RoleProjectHead, auth.RoleProjectManager}
	anyProjectRole = auth.AllProjectRoles
)

func (a *API) handleProjectsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createProject(w, r)
	case http.MethodGet:
		a.listProjects(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	projectID := parts[0]
	if !ids.IsValid(projectID) {
		writeError(w, r, http.StatusBadRequest, "invalid project id")
		return
	}

	switch {
	case len(parts) == 1:
		a.handleProjectResource(w, r, projectID)
	case parts[1] == "members" && len(parts) == 2:
		a.handleProjectMembers(w, r, projectID)
	case parts[1] == "members" && len(parts) == 3:
		a.handleProjectMember(w, r, projectID, parts[2])
	case parts[1] == "assign-manager" && len(parts) == 2:
		a.assignManager(w, r, projectID)
	case parts[1] == "tasks" && len(parts) == 2:
		a.handleProjectTasks(w, r, projectID)
	case parts[1] == "tasks" && len(parts) == 3:
		a.handleTaskResource(w, r, projectID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// requireProject runs authentication plus the project-scope gate and returns
// both the principal and its resolved project role.
func (a *API) requireProject(w http.ResponseWriter, r *http.Request, projectID string, allowed []auth.ProjectRole, readOnly bool) (*auth.Principal, auth.ProjectRole, bool) {
	principal, ok := a.authenticate(w, r)
	if !ok {
		return nil, "", false
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	role, err := a.resolver.CheckProjectPermission(ctx, principal, projectID, allowed, readOnly)
	if err != nil {
		handleAuthError(w, r, err)
		return nil, "", false
	}
	return principal, role, true
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.requireGlobal(w, r, auth.RoleAdmin, auth.RoleSuperAdmin)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "project name is required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}
	now := time.Now().UTC()
	project := &auth.Project{
		ID:          ids.New(),
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		CreatedBy:   principal.AccountID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.store.Projects().Create(ctx, project); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", project.ID))
	writeJSON(w, http.StatusCreated, map[string]any{"project": project})
}

// listProjects shows admins everything and everyone else their memberships.
func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	principal, ok := a.authenticate(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()

	if principal.Role == auth.RoleAdmin || principal.Role == auth.RoleSuperAdmin {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		projects, total, err := a.store.Projects().List(ctx, limit, offset)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects, "total": total})
		return
	}

	projects, err := a.store.Projects().ListByMember(ctx, principal.AccountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects, "total": len(projects)})
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		a.getProject(w, r, projectID)
	case http.MethodPut:
		a.updateProject(w, r, projectID)
	case http.MethodDelete:
		a.deleteProject(w, r, projectID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getProject(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, _, ok := a.requireProject(w, r, projectID, anyProjectRole, true); !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	project, err := a.store.Projects().FindByID(ctx, projectID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": project})
}

func (a *API) updateProject(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, _, ok := a.requireProject(w, r, projectID, headOnly, false); !ok {
		return
	}
	var req updateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	project, err := a.store.Projects().Update(ctx, projectID, req.DisplayName, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": project})
}

func (a *API) deleteProject(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, _, ok := a.requireProject(w, r, projectID, headOnly, false); !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.store.Projects().Delete(ctx, projectID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) handleProjectMembers(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		a.listMembers(w, r, projectID)
	case http.MethodPost:
		a.addMember(w, r, projectID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, _, ok := a.requireProject(w, r, projectID, anyProjectRole, true); !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	members, err := a.store.Memberships().ListByProject(ctx, projectID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (a *API) addMember(w http.ResponseWriter, r *http.Request, projectID string) {
	if _, _, ok := a.requireProject(w, r, projectID, anyProjectRole, false); !ok {
		return
	}
	var req addMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !ids.IsValid(req.AccountID) {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}
	role := auth.RoleTeamMember
	if req.Role != "" {
		parsed, err := auth.ParseProjectRole(req.Role)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		role = parsed
	}
	// The head seat is seeded at project creation and reassigned nowhere.
	if role == auth.RoleProjectHead {
		writeError(w, r, http.StatusBadRequest, "cannot add a member as project head")
		return
	}

	ctx, cancel := a.storeContext(r)
	defer cancel()
	target, err := a.store.Credentials().FindByID(ctx, req.AccountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// Admin accounts oversee from outside; they never hold memberships.
	if target.Role == auth.RoleAdmin || target.Role == auth.RoleSuperAdmin {
		writeError(w, r, http.StatusBadRequest, "admin accounts cannot join projects")
		return
	}
	membership := &auth.Membership{
		AccountID: target.ID,
		ProjectID: projectID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.Memberships().Add(ctx, membership); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"member": membership})
}

// assignManager swaps the single PROJECT_MANAGER seat to the target, who must
// hold the MANAGER global role. A target not yet on the roster is added as
// PROJECT_MANAGER directly.
func (a *API) assignManager(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, _, ok := a.requireProject(w, r, projectID, headOnly, false); !ok {
		return
	}
	var req assignManagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !ids.IsValid(req.AccountID) {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	target, err := a.store.Credentials().FindByID(ctx, req.AccountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if target.Role != auth.RoleManager {
		writeError(w, r, http.StatusBadRequest, "project manager must hold the MANAGER global role")
		return
	}
	membership, err := a.store.Memberships().AssignManager(ctx, projectID, req.AccountID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": membership})
}

func (a *API) handleProjectMember(w http.ResponseWriter, r *http.Request, projectID, accountID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !ids.IsValid(accountID) {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}
	_, callerRole, ok := a.requireProject(w, r, projectID, headOrManager, false)
	if !ok {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	target, err := a.store.Memberships().Find(ctx, accountID, projectID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// The head seat cannot be vacated by removal, and a manager may only
	// remove plain team members. callerRole is empty for the SUPER_ADMIN
	// bypass, which outranks both restrictions except the head seat itself.
	if target.Role == auth.RoleProjectHead {
		writeError(w, r, http.StatusForbidden, "cannot remove the project head")
		return
	}
	if callerRole == auth.RoleProjectManager && target.Role != auth.RoleTeamMember {
		writeError(w, r, http.StatusForbidden, "managers may only remove team members")
		return
	}
	if err := a.store.Memberships().Remove(ctx, projectID, accountID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

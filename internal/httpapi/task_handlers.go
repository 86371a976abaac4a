package httpapi

import (
	"net/http"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	AssignedTo  *string `json:"assigned_to"`
}

// requireTaskScope runs authentication plus the project gate for task routes.
// The project gate runs read-only so ADMIN reaches the task gate, where its
// mutations get the precise refusal instead of a generic membership error.
func (a *API) requireTaskScope(w http.ResponseWriter, r *http.Request, projectID string) (*auth.Principal, auth.ProjectRole, bool) {
	return a.requireProject(w, r, projectID, anyProjectRole, true)
}

func (a *API) checkTaskAction(w http.ResponseWriter, r *http.Request, p *auth.Principal, role auth.ProjectRole, task *auth.Task, action auth.TaskAction) bool {
	if err := a.resolver.CheckTaskAction(p, role, task, action); err != nil {
		handleAuthError(w, r, err)
		return false
	}
	return true
}

func (a *API) handleProjectTasks(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		a.listTasks(w, r, projectID)
	case http.MethodPost:
		a.createTask(w, r, projectID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request, projectID string) {
	principal, role, ok := a.requireTaskScope(w, r, projectID)
	if !ok {
		return
	}
	if !a.checkTaskAction(w, r, principal, role, nil, auth.ActionView) {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	tasks, err := a.store.Tasks().ListByProject(ctx, projectID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request, projectID string) {
	principal, role, ok := a.requireTaskScope(w, r, projectID)
	if !ok {
		return
	}
	if !a.checkTaskAction(w, r, principal, role, nil, auth.ActionCreate) {
		return
	}
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, r, http.StatusBadRequest, "task title is required")
		return
	}
	if req.AssignedTo != "" && !ids.IsValid(req.AssignedTo) {
		writeError(w, r, http.StatusBadRequest, "invalid assignee id")
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if req.AssignedTo != "" {
		// Assignees must belong to the project.
		if _, err := a.store.Memberships().Find(ctx, req.AssignedTo, projectID); err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	now := time.Now().UTC()
	task := &auth.Task{
		ID:          ids.New(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      auth.TaskStatusTodo,
		AssignedTo:  req.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.Tasks().Create(ctx, task); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"task": task})
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request, projectID, taskID string) {
	if !ids.IsValid(taskID) {
		writeError(w, r, http.StatusBadRequest, "invalid task id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getTask(w, r, projectID, taskID)
	case http.MethodPut:
		a.updateTask(w, r, projectID, taskID)
	case http.MethodDelete:
		a.deleteTask(w, r, projectID, taskID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// findProjectTask loads a task and confirms it belongs to the routed project,
// so a task id cannot be reached through another project's path.
func (a *API) findProjectTask(w http.ResponseWriter, r *http.Request, projectID, taskID string) (*auth.Task, bool) {
	ctx, cancel := a.storeContext(r)
	defer cancel()
	task, err := a.store.Tasks().Find(ctx, taskID)
	if err != nil {
		handleAuthError(w, r, err)
		return nil, false
	}
	if task.ProjectID != projectID {
		writeError(w, r, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request, projectID, taskID string) {
	principal, role, ok := a.requireTaskScope(w, r, projectID)
	if !ok {
		return
	}
	task, ok := a.findProjectTask(w, r, projectID, taskID)
	if !ok {
		return
	}
	if !a.checkTaskAction(w, r, principal, role, task, auth.ActionView) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (a *API) updateTask(w http.ResponseWriter, r *http.Request, projectID, taskID string) {
	principal, role, ok := a.requireTaskScope(w, r, projectID)
	if !ok {
		return
	}
	task, ok := a.findProjectTask(w, r, projectID, taskID)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Reassignment is a distinct, more privileged action than editing.
	action := auth.ActionUpdate
	if req.AssignedTo != nil && *req.AssignedTo != task.AssignedTo {
		action = auth.ActionAssign
	}
	if !a.checkTaskAction(w, r, principal, role, task, action) {
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			writeError(w, r, http.StatusBadRequest, "task title is required")
			return
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		switch *req.Status {
		case auth.TaskStatusTodo, auth.TaskStatusInProgress, auth.TaskStatusDone:
			task.Status = *req.Status
		default:
			writeError(w, r, http.StatusBadRequest, "unknown task status")
			return
		}
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if req.AssignedTo != nil {
		if *req.AssignedTo != "" {
			if !ids.IsValid(*req.AssignedTo) {
				writeError(w, r, http.StatusBadRequest, "invalid assignee id")
				return
			}
			if _, err := a.store.Memberships().Find(ctx, *req.AssignedTo, projectID); err != nil {
				handleAuthError(w, r, err)
				return
			}
		}
		task.AssignedTo = *req.AssignedTo
	}

	if err := a.store.Tasks().Update(ctx, task); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (a *API) deleteTask(w http.ResponseWriter, r *http.Request, projectID, taskID string) {
	principal, role, ok := a.requireTaskScope(w, r, projectID)
	if !ok {
		return
	}
	task, ok := a.findProjectTask(w, r, projectID, taskID)
	if !ok {
		return
	}
	if !a.checkTaskAction(w, r, principal, role, task, auth.ActionDelete) {
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.store.Tasks().Delete(ctx, taskID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

package httpapi

import (
	"net/http"
	"strings"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/ids"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (a *API) handleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/accounts/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	accountID := parts[0]
	if !ids.IsValid(accountID) {
		writeError(w, r, http.StatusBadRequest, "invalid account id")
		return
	}
	switch parts[1] {
	case "role":
		a.setAccountRole(w, r, accountID)
	case "active":
		a.setAccountActive(w, r, accountID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) setAccountRole(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	principal, ok := a.requireGlobal(w, r, auth.RoleSuperAdmin)
	if !ok {
		return
	}
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseGlobalRole(req.Role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.SetGlobalRole(ctx, principal.AccountID, accountID, role); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "role_updated", "role": role})
}

func (a *API) setAccountActive(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	principal, ok := a.requireGlobal(w, r, auth.RoleAdmin, auth.RoleSuperAdmin)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if principal.AccountID == accountID && !req.Active {
		writeError(w, r, http.StatusBadRequest, "cannot deactivate your own account here, use /v1/auth/deactivate")
		return
	}
	ctx, cancel := a.storeContext(r)
	defer cancel()
	if err := a.sessions.SetActive(ctx, principal.AccountID, accountID, req.Active); err != nil {
		handleAuthError(w, r, err)
		return
	}
	status := "deactivated"
	if req.Active {
		status = "activated"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

package auth

import (
	"context"
	"errors"
)

// Resolver answers authorization questions by combining the principal's
// global role with project memberships. All store failures propagate so the
// caller fails closed instead of granting or denying on partial information.
type Resolver struct {
	store Store
}

// NewResolver constructs a resolver over the given store.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Resolver{store: store}, nil
}

// RequireGlobalRole checks the principal's global role against an allow-list.
// SUPER_ADMIN bypasses project-scope checks, not these: a route that should
// admit SUPER_ADMIN lists it explicitly.
func RequireGlobalRole(p *Principal, allowed ...GlobalRole) error {
	if p == nil {
		return ErrForbidden
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// CheckProjectPermission gates a project-scoped operation. SUPER_ADMIN always
// passes; ADMIN passes read-only operations without a membership. Everyone
// else needs a membership whose role is in the allow-list. The returned role
// is empty for bypassed principals and the membership role otherwise.
func (r *Resolver) CheckProjectPermission(ctx context.Context, p *Principal, projectID string, allowed []ProjectRole, readOnly bool) (ProjectRole, error) {
	if p == nil {
		return "", ErrForbidden
	}
	if p.Role == RoleSuperAdmin {
		return "", nil
	}
	if p.Role == RoleAdmin && readOnly {
		return "", nil
	}
	m, err := r.store.Memberships().Find(ctx, p.AccountID, projectID)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNotAMember
	}
	if err != nil {
		return "", err
	}
	for _, role := range allowed {
		if m.Role == role {
			return m.Role, nil
		}
	}
	return "", ErrInsufficientProjectRole
}

// CheckTaskAction gates a single task operation on top of project scope.
// projectRole is the role already resolved by CheckProjectPermission; it is
// ignored for SUPER_ADMIN and ADMIN principals, which never hold memberships.
func (r *Resolver) CheckTaskAction(p *Principal, projectRole ProjectRole, task *Task, action TaskAction) error {
	if p == nil {
		return ErrForbidden
	}
	if p.Role == RoleSuperAdmin {
		return nil
	}
	if p.Role == RoleAdmin {
		if action == ActionView {
			return nil
		}
		return ErrAdminCannotModifyTasks
	}
	switch projectRole {
	case RoleProjectHead, RoleProjectManager:
		return nil
	case RoleTeamMember:
		switch action {
		case ActionView:
			return nil
		case ActionUpdate:
			if task != nil && task.AssignedTo == p.AccountID {
				return nil
			}
			return ErrCannotUpdateTask
		default:
			return ErrInsufficientProjectRole
		}
	default:
		return ErrNotAMember
	}
}

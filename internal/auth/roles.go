package auth

import (
	"fmt"
	"strings"
)

// GlobalRole is the account-wide privilege level, independent of any project.
type GlobalRole string

const (
	RoleUser       GlobalRole = "USER"
	RoleManager    GlobalRole = "MANAGER"
	RoleAdmin      GlobalRole = "ADMIN"
	RoleSuperAdmin GlobalRole = "SUPER_ADMIN"
)

// ParseGlobalRole validates raw input against the closed role set.
func ParseGlobalRole(raw string) (GlobalRole, error) {
	switch GlobalRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleManager:
		return RoleManager, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown global role %q", ErrInvalidInput, raw)
	}
}

// ProjectRole is a privilege level scoped to a single project membership.
type ProjectRole string

const (
	RoleProjectHead    ProjectRole = "PROJECT_HEAD"
	RoleProjectManager ProjectRole = "PROJECT_MANAGER"
	RoleTeamMember     ProjectRole = "TEAM_MEMBER"
)

// AllProjectRoles is the allow-list used by routes open to any member.
var AllProjectRoles = []ProjectRole{RoleProjectHead, RoleProjectManager, RoleTeamMember}

// ParseProjectRole validates raw input against the closed role set.
func ParseProjectRole(raw string) (ProjectRole, error) {
	switch ProjectRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleProjectHead:
		return RoleProjectHead, nil
	case RoleProjectManager:
		return RoleProjectManager, nil
	case RoleTeamMember:
		return RoleTeamMember, nil
	default:
		return "", fmt.Errorf("%w: unknown project role %q", ErrInvalidInput, raw)
	}
}

// TaskAction tags the fine-grained task operations gated on top of the
// project-scope check.
type TaskAction string

const (
	ActionCreate TaskAction = "create"
	ActionUpdate TaskAction = "update"
	ActionDelete TaskAction = "delete"
	ActionAssign TaskAction = "assign"
	ActionView   TaskAction = "view"
)

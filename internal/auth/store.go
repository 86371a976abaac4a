package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth subsystem requires.
type Store interface {
	Credentials() CredentialStore
	Projects() ProjectStore
	Memberships() MembershipStore
	Tasks() TaskStore
	Audit() AuditStore
}

// CredentialStore manages accounts and the single stored refresh token.
type CredentialStore interface {
	Create(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// UpdateRefreshToken overwrites the stored refresh token; an empty value
	// clears it (logout, deactivation).
	UpdateRefreshToken(ctx context.Context, id, token string) error

	// RotateRefreshToken replaces old with new only if old is still the
	// stored value (compare-and-set). Returns ErrTokenMismatch when the
	// stored value has moved on, which closes the concurrent-refresh race.
	RotateRefreshToken(ctx context.Context, id, old, next string) error

	// UpdatePassword writes the new hash and clears the stored refresh token
	// in the same statement so old sessions cannot outlive the credentials.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	UpdateRole(ctx context.Context, id string, role GlobalRole) error

	// SetActive flips the active flag; deactivation clears the stored
	// refresh token in the same statement.
	SetActive(ctx context.Context, id string, active bool) error

	SetVerifyToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	FindByVerifyToken(ctx context.Context, tokenHash string) (*Account, error)
	MarkEmailVerified(ctx context.Context, id string) error

	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*Account, error)
}

// ProjectStore manages projects and the invariants tied to their lifecycle.
type ProjectStore interface {
	// Create inserts the project and seeds the creator's PROJECT_HEAD
	// membership in one transaction.
	Create(ctx context.Context, p *Project) error
	FindByID(ctx context.Context, id string) (*Project, error)
	FindByName(ctx context.Context, name string) (*Project, error)
	Update(ctx context.Context, id string, displayName, description *string) (*Project, error)
	// Delete removes the project and its dependents (tasks, memberships) in
	// a defined order inside one transaction; no cascade is assumed.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*Project, int, error)
	ListByMember(ctx context.Context, accountID string) ([]*Project, error)
}

// MembershipStore manages (account, project) role rows.
type MembershipStore interface {
	Find(ctx context.Context, accountID, projectID string) (*Membership, error)
	ListByProject(ctx context.Context, projectID string) ([]*Membership, error)
	Add(ctx context.Context, m *Membership) error
	// AssignManager promotes accountID to PROJECT_MANAGER, demoting any
	// current manager to TEAM_MEMBER, all in one transaction. The membership
	// is created when accountID is not yet on the roster.
	AssignManager(ctx context.Context, projectID, accountID string) (*Membership, error)
	// Remove deletes the membership and nulls the member's task assignments
	// in the project, in one transaction.
	Remove(ctx context.Context, projectID, accountID string) error
}

// TaskStore provides the task persistence the action gate and thin task
// handlers need.
type TaskStore interface {
	Find(ctx context.Context, id string) (*Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*Task, error)
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}

// AuditStore appends immutable entries for privileged account mutations.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

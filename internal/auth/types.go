package auth

import "time"

// Account is an identity row in the credential store. RefreshToken holds the
// single live refresh token; it is overwritten on rotation and cleared on
// logout, password change, and deactivation.
type Account struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	PasswordHash  string     `json:"-"`
	Role          GlobalRole `json:"role"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"email_verified"`
	RefreshToken  string     `json:"-"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Project is the scope unit memberships attach to.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership maps (account, project) to a project role; unique per pair.
type Membership struct {
	AccountID string      `json:"account_id"`
	ProjectID string      `json:"project_id"`
	Role      ProjectRole `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// Task carries the fields the task-action gate needs; full task CRUD beyond
// this is persistence plumbing.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task statuses.
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusDone       = "DONE"
)

// AuditEntry is an append-only record of a privileged account mutation.
type AuditEntry struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    string    `json:"actor_id"`
	TargetID   string    `json:"target_id"`
	Action     string    `json:"action"`
}

// Audit actions.
const (
	AuditCreateAccount = "CREATE_ACCOUNT"
	AuditPromote       = "PROMOTE"
	AuditDemote        = "DEMOTE"
	AuditActivate      = "ACTIVATE"
	AuditDeactivate    = "DEACTIVATE"
)

// Principal is the authenticated identity attached to a request after access
// token verification.
type Principal struct {
	AccountID string
	Role      GlobalRole
}

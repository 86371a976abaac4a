package auth

import "errors"

// Authentication failures. All of these collapse to a generic 401 at the API
// boundary; the specific reason is logged server-side only.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrTokenMismatch      = errors.New("auth: refresh token mismatch")
	ErrAccountNotFound    = errors.New("auth: account not found")
)

// Login/refresh policy failures surfaced as 403.
var (
	ErrEmailNotVerified   = errors.New("auth: email not verified")
	ErrAccountDeactivated = errors.New("auth: account deactivated")
)

// Authorization failures; the reason is policy, not secret, so it is safe to
// return in the response body.
var (
	ErrForbidden               = errors.New("auth: access denied")
	ErrNotAMember              = errors.New("auth: not a member of this project")
	ErrInsufficientProjectRole = errors.New("auth: insufficient project role")
	ErrAdminCannotModifyTasks  = errors.New("auth: admins cannot modify tasks")
	ErrCannotUpdateTask        = errors.New("auth: cannot update this task")
)

// Store-level outcomes.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)

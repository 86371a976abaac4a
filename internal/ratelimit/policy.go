package ratelimit

import "time"

// Policy is a fixed-window budget for one class of requests. Name becomes
// part of the counter key, so it must be stable across deployments.
type Policy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Request classes and their budgets. Global applies to every request before
// any per-route class.
var (
	Global         = Policy{Name: "global", Limit: 100, Window: 15 * time.Minute}
	Register       = Policy{Name: "register", Limit: 7, Window: 15 * time.Minute}
	Login          = Policy{Name: "login", Limit: 6, Window: 15 * time.Minute}
	Refresh        = Policy{Name: "refresh", Limit: 10, Window: time.Minute}
	ForgotPassword = Policy{Name: "forgot-password", Limit: 5, Window: 15 * time.Minute}
	ResetPassword  = Policy{Name: "reset-password", Limit: 5, Window: 15 * time.Minute}
	ChangePassword = Policy{Name: "change-password", Limit: 5, Window: 5 * time.Minute}
	ResendEmail    = Policy{Name: "resend-email", Limit: 3, Window: 15 * time.Minute}
	EmailVerify    = Policy{Name: "email-verify", Limit: 5, Window: 15 * time.Minute}
	Upload         = Policy{Name: "upload", Limit: 10, Window: 15 * time.Minute}
)

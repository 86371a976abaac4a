package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type capturedMail struct {
	kind  string
	email string
	token string
}

type captureMailer struct {
	sent []capturedMail
}

func (m *captureMailer) SendVerification(_ context.Context, email, token string) error {
	m.sent = append(m.sent, capturedMail{"verification", email, token})
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.sent = append(m.sent, capturedMail{"reset", email, token})
	return nil
}

func newTestService(t *testing.T, store *InMemory, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, newTestCodec(t), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedAccount(t *testing.T, store *InMemory, id, email, password string, mutate func(*Account)) *Account {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	a := &Account{
		ID:            id,
		Email:         email,
		FullName:      "Test Account",
		PasswordHash:  hash,
		Role:          RoleUser,
		Active:        true,
		EmailVerified: true,
	}
	if mutate != nil {
		mutate(a)
	}
	store.addAccount(a)
	return a
}

func TestLoginSuccessPersistsRefreshToken(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "correct horse", nil)
	svc := newTestService(t, store)

	pair, acct, err := svc.Login(context.Background(), "U1@Example.com ", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if acct.ID != "u1" {
		t.Fatalf("account = %q", acct.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens minted")
	}
	if got := store.account("u1").RefreshToken; got != pair.RefreshToken {
		t.Fatalf("stored refresh token = %q, want minted value", got)
	}
}

func TestLoginFailureOrder(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "unverified", "unverified@example.com", "password1", func(a *Account) {
		a.EmailVerified = false
	})
	seedAccount(t, store, "inactive", "inactive@example.com", "password1", func(a *Account) {
		a.Active = false
	})
	svc := newTestService(t, store)

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@example.com", "password1", ErrInvalidCredentials},
		{"wrong password", "unverified@example.com", "wrong", ErrInvalidCredentials},
		// The credential check runs before the verification and active
		// checks, so a wrong password on a deactivated account still reads
		// as invalid credentials.
		{"wrong password on inactive account", "inactive@example.com", "wrong", ErrInvalidCredentials},
		{"unverified email", "unverified@example.com", "password1", ErrEmailNotVerified},
		{"deactivated account", "inactive@example.com", "password1", ErrAccountDeactivated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Login = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoginStoreFailurePropagates(t *testing.T) {
	store := NewInMemory()
	boom := errors.New("connection reset")
	store.failWith = boom
	svc := newTestService(t, store)

	if _, _, err := svc.Login(context.Background(), "u1@example.com", "password1"); !errors.Is(err, boom) {
		t.Fatalf("Login = %v, want store error", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "password1", nil)
	svc := newTestService(t, store)

	first, _, err := svc.Login(context.Background(), "u1@example.com", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, _, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if got := store.account("u1").RefreshToken; got != second.RefreshToken {
		t.Fatalf("stored refresh token = %q, want rotated value", got)
	}
}

func TestRefreshOldTokenRejectedAfterRotation(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "password1", nil)
	svc := newTestService(t, store)

	first, _, err := svc.Login(context.Background(), "u1@example.com", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("replayed refresh = %v, want ErrTokenMismatch", err)
	}
}

func TestRefreshFailureModes(t *testing.T) {
	store := NewInMemory()
	codec := newTestCodec(t)
	svc, err := NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	t.Run("garbage token", func(t *testing.T) {
		if _, _, err := svc.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Refresh = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("account deleted after issuance", func(t *testing.T) {
		signed, _, _ := codec.MintRefresh("ghost")
		if _, _, err := svc.Refresh(context.Background(), signed); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("Refresh = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("valid token not matching stored value", func(t *testing.T) {
		seedAccount(t, store, "u2", "u2@example.com", "password1", func(a *Account) {
			a.RefreshToken = "something-else"
		})
		signed, _, _ := codec.MintRefresh("u2")
		if _, _, err := svc.Refresh(context.Background(), signed); !errors.Is(err, ErrTokenMismatch) {
			t.Fatalf("Refresh = %v, want ErrTokenMismatch", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		signed, _, _ := codec.MintRefresh("u3")
		seedAccount(t, store, "u3", "u3@example.com", "password1", func(a *Account) {
			a.Active = false
			a.RefreshToken = signed
		})
		if _, _, err := svc.Refresh(context.Background(), signed); !errors.Is(err, ErrAccountDeactivated) {
			t.Fatalf("Refresh = %v, want ErrAccountDeactivated", err)
		}
	})
}

func TestLogoutClearsRefreshTokenAndIsIdempotent(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "password1", func(a *Account) {
		a.RefreshToken = "live-token"
	})
	svc := newTestService(t, store)

	if err := svc.Logout(context.Background(), "u1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got := store.account("u1").RefreshToken; got != "" {
		t.Fatalf("stored refresh token = %q, want cleared", got)
	}
	if err := svc.Logout(context.Background(), "u1"); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := svc.Logout(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Logout of unknown account: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "old password", func(a *Account) {
		a.RefreshToken = "live-token"
	})
	svc := newTestService(t, store)

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), "u1", "not it", "new password")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("ChangePassword = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("same as current", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), "u1", "old password", "old password")
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ChangePassword = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("success ends sessions", func(t *testing.T) {
		if err := svc.ChangePassword(context.Background(), "u1", "old password", "new password"); err != nil {
			t.Fatalf("ChangePassword: %v", err)
		}
		a := store.account("u1")
		if a.RefreshToken != "" {
			t.Fatal("refresh token survived a password change")
		}
		if err := VerifyPassword(a.PasswordHash, "new password"); err != nil {
			t.Fatalf("new password does not verify: %v", err)
		}
	})
}

func TestRegisterCreatesUnverifiedUserAndAudits(t *testing.T) {
	store := NewInMemory()
	mailer := &captureMailer{}
	svc := newTestService(t, store, WithMailer(mailer))

	acct, err := svc.Register(context.Background(), "admin-1", "New.User@Example.com", "New User", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acct.Role != RoleUser || acct.EmailVerified || !acct.Active {
		t.Fatalf("account = %+v, want active unverified USER", acct)
	}
	if acct.Email != "new.user@example.com" {
		t.Fatalf("email = %q, want normalized", acct.Email)
	}
	if acct.CreatedBy != "admin-1" {
		t.Fatalf("created_by = %q", acct.CreatedBy)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].kind != "verification" {
		t.Fatalf("mail = %+v, want one verification send", mailer.sent)
	}
	if len(store.audit) != 1 || store.audit[0].Action != AuditCreateAccount || store.audit[0].ActorID != "admin-1" {
		t.Fatalf("audit = %+v", store.audit)
	}

	if _, err := svc.Register(context.Background(), "admin-1", "new.user@example.com", "Dup", "password1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate Register = %v, want ErrConflict", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	store := NewInMemory()
	mailer := &captureMailer{}
	svc := newTestService(t, store, WithMailer(mailer))

	acct, err := svc.Register(context.Background(), "admin-1", "u1@example.com", "U One", "password1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	raw := mailer.sent[0].token

	if err := svc.VerifyEmail(context.Background(), "bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("bogus token = %v, want ErrInvalidToken", err)
	}
	if err := svc.VerifyEmail(context.Background(), raw); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !store.account(acct.ID).EmailVerified {
		t.Fatal("account not marked verified")
	}
	// One-time: consuming it again fails.
	if err := svc.VerifyEmail(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused token = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	store := NewInMemory()
	mailer := &captureMailer{}
	base := time.Now()
	clock := base
	store.now = func() time.Time { return clock }
	svc := newTestService(t, store, WithMailer(mailer), WithClock(func() time.Time { return clock }))

	if _, err := svc.Register(context.Background(), "admin-1", "u1@example.com", "U One", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock = base.Add(21 * time.Minute)
	if err := svc.VerifyEmail(context.Background(), mailer.sent[0].token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token = %v, want ErrInvalidToken", err)
	}
}

func TestResendVerification(t *testing.T) {
	store := NewInMemory()
	mailer := &captureMailer{}
	svc := newTestService(t, store, WithMailer(mailer))

	seedAccount(t, store, "verified", "verified@example.com", "password1", nil)
	seedAccount(t, store, "pending", "pending@example.com", "password1", func(a *Account) {
		a.EmailVerified = false
	})

	if err := svc.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := svc.ResendVerification(context.Background(), "verified@example.com"); err != nil {
		t.Fatalf("already verified: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mail sent for no-op cases: %+v", mailer.sent)
	}
	if err := svc.ResendVerification(context.Background(), "pending@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].email != "pending@example.com" {
		t.Fatalf("mail = %+v", mailer.sent)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := NewInMemory()
	mailer := &captureMailer{}
	svc := newTestService(t, store, WithMailer(mailer))

	seedAccount(t, store, "u1", "u1@example.com", "old password", func(a *Account) {
		a.RefreshToken = "live-token"
	})

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if err := svc.ForgotPassword(context.Background(), "u1@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].kind != "reset" {
		t.Fatalf("mail = %+v", mailer.sent)
	}
	raw := mailer.sent[0].token

	if err := svc.ResetPassword(context.Background(), raw, "new password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	a := store.account("u1")
	if a.RefreshToken != "" {
		t.Fatal("refresh token survived a password reset")
	}
	if err := VerifyPassword(a.PasswordHash, "new password"); err != nil {
		t.Fatalf("new password does not verify: %v", err)
	}
	if err := svc.ResetPassword(context.Background(), raw, "another one"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused reset token = %v, want ErrInvalidToken", err)
	}
}

func TestSetActive(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "password1", func(a *Account) {
		a.RefreshToken = "live-token"
	})
	svc := newTestService(t, store)

	if err := svc.SetActive(context.Background(), "admin-1", "u1", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	a := store.account("u1")
	if a.Active {
		t.Fatal("account still active")
	}
	if a.RefreshToken != "" {
		t.Fatal("refresh token survived deactivation")
	}
	if err := svc.SetActive(context.Background(), "admin-1", "u1", true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got := len(store.audit); got != 2 {
		t.Fatalf("audit entries = %d, want 2", got)
	}
	if store.audit[0].Action != AuditDeactivate || store.audit[1].Action != AuditActivate {
		t.Fatalf("audit = %+v", store.audit)
	}
}

func TestSetGlobalRole(t *testing.T) {
	store := NewInMemory()
	seedAccount(t, store, "u1", "u1@example.com", "password1", nil)
	seedAccount(t, store, "root", "root@example.com", "password1", func(a *Account) {
		a.Role = RoleSuperAdmin
	})
	svc := newTestService(t, store)
	ctx := context.Background()

	if err := svc.SetGlobalRole(ctx, "sa-1", "u1", RoleSuperAdmin); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("assign SUPER_ADMIN = %v, want ErrInvalidInput", err)
	}
	if err := svc.SetGlobalRole(ctx, "sa-1", "root", RoleUser); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("demote SUPER_ADMIN = %v, want ErrInvalidInput", err)
	}
	if err := svc.SetGlobalRole(ctx, "sa-1", "missing", RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown target = %v, want ErrNotFound", err)
	}

	if err := svc.SetGlobalRole(ctx, "sa-1", "u1", RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := store.account("u1").Role; got != RoleAdmin {
		t.Fatalf("role = %q, want ADMIN", got)
	}
	if err := svc.SetGlobalRole(ctx, "sa-1", "u1", RoleUser); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if len(store.audit) != 2 || store.audit[0].Action != AuditPromote || store.audit[1].Action != AuditDemote {
		t.Fatalf("audit = %+v", store.audit)
	}

	// No-op when the role is unchanged.
	if err := svc.SetGlobalRole(ctx, "sa-1", "u1", RoleUser); err != nil {
		t.Fatalf("no-op: %v", err)
	}
	if len(store.audit) != 2 {
		t.Fatalf("no-op appended an audit entry: %+v", store.audit)
	}
}

func TestAuthenticate(t *testing.T) {
	store := NewInMemory()
	codec := newTestCodec(t)
	svc, err := NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	seedAccount(t, store, "u1", "u1@example.com", "password1", func(a *Account) {
		a.Role = RoleManager
	})
	seedAccount(t, store, "inactive", "inactive@example.com", "password1", func(a *Account) {
		a.Active = false
	})
	ctx := context.Background()

	signed, _, _ := codec.MintAccess("u1", RoleManager)
	p, err := svc.Authenticate(ctx, signed)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.AccountID != "u1" || p.Role != RoleManager {
		t.Fatalf("principal = %+v", p)
	}

	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage = %v, want ErrInvalidToken", err)
	}
	ghost, _, _ := codec.MintAccess("ghost", RoleUser)
	if _, err := svc.Authenticate(ctx, ghost); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("deleted account = %v, want ErrAccountNotFound", err)
	}
	off, _, _ := codec.MintAccess("inactive", RoleUser)
	if _, err := svc.Authenticate(ctx, off); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("deactivated = %v, want ErrAccountDeactivated", err)
	}

	// A token that verifies but cannot be checked against the store must
	// surface the store failure, never an authorization verdict.
	boom := errors.New("timeout")
	store.failWith = boom
	if _, err := svc.Authenticate(ctx, signed); !errors.Is(err, boom) {
		t.Fatalf("store failure = %v, want propagated error", err)
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskhive.org/internal/ids"
	"taskhive.org/internal/obs"
)

// oneTimeTokenTTL bounds email verification and password reset links.
const oneTimeTokenTTL = 20 * time.Minute

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// Mailer delivers one-time tokens to account owners. The raw token is passed
// here and nowhere else; the store only ever sees its hash.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// logMailer is the default Mailer: it logs the delivery instead of sending.
type logMailer struct{}

func (logMailer) SendVerification(_ context.Context, email, token string) error {
	obs.Log(map[string]any{"event": "mail.verification", "email": email, "token": token})
	return nil
}

func (logMailer) SendPasswordReset(_ context.Context, email, token string) error {
	obs.Log(map[string]any{"event": "mail.password_reset", "email": email, "token": token})
	return nil
}

// Service is the session manager: login, token lifecycle, account state.
type Service struct {
	store  Store
	codec  *TokenCodec
	mailer Mailer
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithMailer replaces the default log-only mailer.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// NewService constructs the session manager.
func NewService(store Store, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	s := &Service{
		store:  store,
		codec:  codec,
		mailer: logMailer{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec exposes the token codec for transport-layer cookie lifetimes.
func (s *Service) Codec() *TokenCodec { return s.codec }

// Login authenticates email+password and establishes a session. Failure
// checks run in a fixed order: credentials first, then verification, then
// active state, so a deactivated account never learns whether its password
// was right before the credential check passes.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, *Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, ErrInvalidCredentials
	}
	acct, err := s.store.Credentials().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// Burn a comparison anyway so the miss is not timing-visible.
		_ = VerifyPassword("", password)
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !acct.EmailVerified {
		return nil, nil, ErrEmailNotVerified
	}
	if !acct.Active {
		return nil, nil, ErrAccountDeactivated
	}
	pair, err := s.mintPair(acct)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Credentials().UpdateRefreshToken(ctx, acct.ID, pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	return pair, acct, nil
}

// Refresh rotates a session. The presented token must verify, belong to an
// existing active account, and equal the stored value; the swap itself is a
// compare-and-set so only one of two concurrent refreshes with the same
// token wins.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, *Account, error) {
	claims, err := s.codec.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	acct, err := s.store.Credentials().FindByID(ctx, claims.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if acct.RefreshToken == "" || acct.RefreshToken != rawRefresh {
		return nil, nil, ErrTokenMismatch
	}
	if !acct.Active {
		return nil, nil, ErrAccountDeactivated
	}
	pair, err := s.mintPair(acct)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Credentials().RotateRefreshToken(ctx, acct.ID, rawRefresh, pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	return pair, acct, nil
}

// Logout clears the stored refresh token. It succeeds even when no session
// exists; logout is idempotent.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	err := s.store.Credentials().UpdateRefreshToken(ctx, accountID, "")
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ChangePassword verifies the current password and replaces it. The store
// clears the refresh token in the same write, ending every live session.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	acct, err := s.store.Credentials().FindByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if err := VerifyPassword(acct.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	if oldPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Credentials().UpdatePassword(ctx, accountID, hash)
}

// Register creates a USER account on behalf of a privileged actor and sends
// a verification token. The caller has already passed the global role gate.
func (s *Service) Register(ctx context.Context, actorID, email, fullName, password string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	acct := &Account{
		ID:           ids.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: hash,
		Role:         RoleUser,
		Active:       true,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Credentials().Create(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.audit(ctx, actorID, acct.ID, AuditCreateAccount); err != nil {
		return nil, err
	}
	if err := s.issueVerifyToken(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// VerifyEmail consumes a one-time verification token.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	acct, err := s.lookupOneTime(ctx, rawToken, s.store.Credentials().FindByVerifyToken)
	if err != nil {
		return err
	}
	return s.store.Credentials().MarkEmailVerified(ctx, acct.ID)
}

// ResendVerification issues a fresh verification token. Unknown and
// already-verified addresses return nil so the endpoint cannot be used to
// probe for accounts.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	acct, err := s.store.Credentials().FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}
	return s.issueVerifyToken(ctx, acct)
}

// ForgotPassword issues a reset token. Unknown addresses return nil.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	acct, err := s.store.Credentials().FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	raw, hash, err := newOneTimeToken()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(oneTimeTokenTTL)
	if err := s.store.Credentials().SetResetToken(ctx, acct.ID, hash, expires); err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, acct.Email, raw)
}

// ResetPassword consumes a reset token and sets a new password. The store
// clears the refresh token in the same write.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	acct, err := s.lookupOneTime(ctx, rawToken, s.store.Credentials().FindByResetToken)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Credentials().UpdatePassword(ctx, acct.ID, hash)
}

// SetActive activates or deactivates an account. Deactivation also clears
// the stored refresh token, so live sessions die at the next refresh.
func (s *Service) SetActive(ctx context.Context, actorID, targetID string, active bool) error {
	if err := s.store.Credentials().SetActive(ctx, targetID, active); err != nil {
		return err
	}
	action := AuditDeactivate
	if active {
		action = AuditActivate
	}
	return s.audit(ctx, actorID, targetID, action)
}

// SetGlobalRole promotes or demotes between USER and ADMIN. Movement in or
// out of SUPER_ADMIN is never allowed through this path.
func (s *Service) SetGlobalRole(ctx context.Context, actorID, targetID string, role GlobalRole) error {
	if role == RoleSuperAdmin {
		return fmt.Errorf("%w: cannot assign SUPER_ADMIN", ErrInvalidInput)
	}
	acct, err := s.store.Credentials().FindByID(ctx, targetID)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if acct.Role == RoleSuperAdmin {
		return fmt.Errorf("%w: cannot change a SUPER_ADMIN account", ErrInvalidInput)
	}
	if acct.Role == role {
		return nil
	}
	if err := s.store.Credentials().UpdateRole(ctx, targetID, role); err != nil {
		return err
	}
	action := AuditPromote
	if rank(role) < rank(acct.Role) {
		action = AuditDemote
	}
	return s.audit(ctx, actorID, targetID, action)
}

// Authenticate verifies an access token and confirms the account still
// exists and is active. Store failures surface as-is so the caller fails
// closed with a 5xx rather than an authorization verdict.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (*Principal, error) {
	claims, err := s.codec.VerifyAccess(rawAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	acct, err := s.store.Credentials().FindByID(ctx, claims.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, ErrAccountDeactivated
	}
	return &Principal{AccountID: acct.ID, Role: acct.Role}, nil
}

func (s *Service) mintPair(acct *Account) (*TokenPair, error) {
	access, accessExp, err := s.codec.MintAccess(acct.ID, acct.Role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.codec.MintRefresh(acct.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:   access,
		AccessExpiry:  accessExp,
		RefreshToken:  refresh,
		RefreshExpiry: refreshExp,
	}, nil
}

func (s *Service) issueVerifyToken(ctx context.Context, acct *Account) error {
	raw, hash, err := newOneTimeToken()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(oneTimeTokenTTL)
	if err := s.store.Credentials().SetVerifyToken(ctx, acct.ID, hash, expires); err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, acct.Email, raw)
}

// lookupOneTime hashes the presented token and resolves it through fn. The
// store enforces expiry, so an expired token behaves like an unknown one.
func (s *Service) lookupOneTime(ctx context.Context, rawToken string, fn func(context.Context, string) (*Account, error)) (*Account, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrInvalidToken
	}
	acct, err := fn(ctx, hashToken(rawToken))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) audit(ctx context.Context, actorID, targetID, action string) error {
	return s.store.Audit().Append(ctx, &AuditEntry{
		ID:         ids.New(),
		OccurredAt: s.now().UTC(),
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     action,
	})
}

// rank orders global roles for promote/demote audit labeling.
func rank(r GlobalRole) int {
	switch r {
	case RoleSuperAdmin:
		return 3
	case RoleAdmin:
		return 2
	case RoleManager:
		return 1
	default:
		return 0
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newOneTimeToken returns (raw token, sha256 hex of raw token).
func newOneTimeToken() (string, string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw := hex.EncodeToString(buf)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

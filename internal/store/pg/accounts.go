package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskhive.org/internal/auth"
)

type credentialStore struct {
	db *sql.DB
}

var _ auth.CredentialStore = (*credentialStore)(nil)

const accountColumns = `
	id, email, full_name, password_hash, role, active, email_verified,
	coalesce(refresh_token, ''), coalesce(created_by, ''), created_at, updated_at`

func scanAccount(row *sql.Row) (*auth.Account, error) {
	var a auth.Account
	var role string
	err := row.Scan(
		&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &role, &a.Active,
		&a.EmailVerified, &a.RefreshToken, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.GlobalRole(role)
	return &a, nil
}

func (s *credentialStore) Create(ctx context.Context, a *auth.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (id, email, full_name, password_hash, role, active, email_verified, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, nullif($8, ''), $9, $10)
	`, a.ID, a.Email, a.FullName, a.PasswordHash, string(a.Role), a.Active, a.EmailVerified, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *credentialStore) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where id = $1
	`, id))
}

func (s *credentialStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where email = $1
	`, email))
}

func (s *credentialStore) UpdateRefreshToken(ctx context.Context, id, token string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set refresh_token = nullif($2, ''), updated_at = now()
		where id = $1
	`, id, token)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RotateRefreshToken is a compare-and-set: the update lands only if the
// stored token is still the one the caller presented. Zero rows means a
// concurrent rotation won.
func (s *credentialStore) RotateRefreshToken(ctx context.Context, id, old, next string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set refresh_token = $3, updated_at = now()
		where id = $1 and refresh_token = $2
	`, id, old, next)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrTokenMismatch
	}
	return nil
}

func (s *credentialStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set password_hash = $2,
		    refresh_token = null,
		    reset_token_hash = null,
		    reset_token_expires = null,
		    updated_at = now()
		where id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) UpdateRole(ctx context.Context, id string, role auth.GlobalRole) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set role = $2, updated_at = now()
		where id = $1
	`, id, string(role))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set active = $2,
		    refresh_token = case when $2 then refresh_token else null end,
		    updated_at = now()
		where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) SetVerifyToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set verify_token_hash = $2, verify_token_expires = $3, updated_at = now()
		where id = $1
	`, id, tokenHash, expires)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) FindByVerifyToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where verify_token_hash = $1 and verify_token_expires > now()
	`, tokenHash))
}

func (s *credentialStore) MarkEmailVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set email_verified = true,
		    verify_token_hash = null,
		    verify_token_expires = null,
		    updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set reset_token_hash = $2, reset_token_expires = $3, updated_at = now()
		where id = $1
	`, id, tokenHash, expires)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *credentialStore) FindByResetToken(ctx context.Context, tokenHash string) (*auth.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from accounts
		where reset_token_hash = $1 and reset_token_expires > now()
	`, tokenHash))
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

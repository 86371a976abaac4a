package pg

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"taskhive.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements auth.Store on top of Postgres.
type Store struct {
	db *sql.DB

	credentials *credentialStore
	projects    *projectStore
	memberships *membershipStore
	tasks       *taskStore
	audit       *auditStore
}

var _ auth.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection; the caller keeps ownership of db.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		credentials: &credentialStore{db: db},
		projects:    &projectStore{db: db},
		memberships: &membershipStore{db: db},
		tasks:       &taskStore{db: db},
		audit:       &auditStore{db: db},
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Credentials() auth.CredentialStore { return s.credentials }
func (s *Store) Projects() auth.ProjectStore       { return s.projects }
func (s *Store) Memberships() auth.MembershipStore { return s.memberships }
func (s *Store) Tasks() auth.TaskStore             { return s.tasks }
func (s *Store) Audit() auth.AuditStore            { return s.audit }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapPgError translates constraint violations into domain sentinels; other
// errors pass through untouched.
func mapPgError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

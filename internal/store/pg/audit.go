package pg

import (
	"context"
	"database/sql"

	"taskhive.org/internal/auth"
)

type auditStore struct {
	db *sql.DB
}

var _ auth.AuditStore = (*auditStore)(nil)

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into account_audit (id, occurred_at, actor_id, target_id, action)
		values ($1, $2, $3, $4, $5)
	`, entry.ID, entry.OccurredAt, entry.ActorID, entry.TargetID, entry.Action)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

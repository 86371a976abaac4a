package pg

import (
	"context"
	"database/sql"
	"errors"

	"taskhive.org/internal/auth"
)

type membershipStore struct {
	db *sql.DB
}

var _ auth.MembershipStore = (*membershipStore)(nil)

func (s *membershipStore) Find(ctx context.Context, accountID, projectID string) (*auth.Membership, error) {
	var m auth.Membership
	var role string
	err := s.db.QueryRowContext(ctx, `
		select account_id, project_id, project_role, created_at
		from memberships
		where account_id = $1 and project_id = $2
	`, accountID, projectID).Scan(&m.AccountID, &m.ProjectID, &role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Role = auth.ProjectRole(role)
	return &m, nil
}

func (s *membershipStore) ListByProject(ctx context.Context, projectID string) ([]*auth.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select account_id, project_id, project_role, created_at
		from memberships
		where project_id = $1
		order by created_at asc
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Membership
	for rows.Next() {
		var m auth.Membership
		var role string
		if err := rows.Scan(&m.AccountID, &m.ProjectID, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = auth.ProjectRole(role)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *membershipStore) Add(ctx context.Context, m *auth.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships (account_id, project_id, project_role, created_at)
		values ($1, $2, $3, $4)
	`, m.AccountID, m.ProjectID, string(m.Role), m.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// AssignManager demotes the current PROJECT_MANAGER (if any) to TEAM_MEMBER
// and promotes the target, in one transaction. A target without a membership
// gets one created as PROJECT_MANAGER directly. The partial unique index on
// memberships makes a second concurrent promotion fail as a conflict rather
// than leaving two managers.
func (s *membershipStore) AssignManager(ctx context.Context, projectID, accountID string) (*auth.Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update memberships
		set project_role = $2
		where project_id = $1 and project_role = $3 and account_id <> $4
	`, projectID, string(auth.RoleTeamMember), string(auth.RoleProjectManager), accountID); err != nil {
		return nil, err
	}

	var m auth.Membership
	var role string
	err = tx.QueryRowContext(ctx, `
		insert into memberships (account_id, project_id, project_role, created_at)
		values ($1, $2, $3, now())
		on conflict (account_id, project_id)
		do update set project_role = excluded.project_role
		returning account_id, project_id, project_role, created_at
	`, accountID, projectID, string(auth.RoleProjectManager)).Scan(&m.AccountID, &m.ProjectID, &role, &m.CreatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	m.Role = auth.ProjectRole(role)

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Remove deletes the membership and nulls the member's task assignments in
// the same project, in one transaction. Tasks stay; only the assignee link
// goes.
func (s *membershipStore) Remove(ctx context.Context, projectID, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update tasks
		set assigned_to = null, updated_at = now()
		where project_id = $1 and assigned_to = $2
	`, projectID, accountID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		delete from memberships
		where project_id = $1 and account_id = $2
	`, projectID, accountID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskhive.org/internal/auth"
)

type projectStore struct {
	db *sql.DB
}

var _ auth.ProjectStore = (*projectStore)(nil)

const projectColumns = `
	id, name, display_name, coalesce(description, ''), created_by, created_at, updated_at`

func scanProject(row *sql.Row) (*auth.Project, error) {
	var p auth.Project
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts the project and the creator's PROJECT_HEAD membership in one
// transaction, so a project can never exist without its head.
func (s *projectStore) Create(ctx context.Context, p *auth.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into projects (id, name, display_name, description, created_by, created_at, updated_at)
		values ($1, $2, $3, nullif($4, ''), $5, $6, $7)
	`, p.ID, p.Name, p.DisplayName, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into memberships (account_id, project_id, project_role, created_at)
		values ($1, $2, $3, $4)
	`, p.CreatedBy, p.ID, string(auth.RoleProjectHead), p.CreatedAt); err != nil {
		return mapPgError(err)
	}
	return tx.Commit()
}

func (s *projectStore) FindByID(ctx context.Context, id string) (*auth.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		select `+projectColumns+`
		from projects
		where id = $1
	`, id))
}

func (s *projectStore) FindByName(ctx context.Context, name string) (*auth.Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		select `+projectColumns+`
		from projects
		where name = $1
	`, name))
}

func (s *projectStore) Update(ctx context.Context, id string, displayName, description *string) (*auth.Project, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if displayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", idx))
		args = append(args, *displayName)
		idx++
	}
	if description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = nullif($%d, '')", idx))
		args = append(args, *description)
		idx++
	}
	if len(setClauses) == 0 {
		return s.FindByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(`
		update projects
		set %s
		where id = $%d
		returning `+projectColumns+`
	`, strings.Join(setClauses, ", "), idx)
	p, err := scanProject(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapPgError(err)
	}
	return p, nil
}

// Delete removes dependents before the project row; no FK cascade is assumed.
func (s *projectStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from tasks where project_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from memberships where project_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from projects where id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *projectStore) List(ctx context.Context, limit, offset int) ([]*auth.Project, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from projects`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+projectColumns+`
		from projects
		order by created_at desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*auth.Project
	for rows.Next() {
		var p auth.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *projectStore) ListByMember(ctx context.Context, accountID string) ([]*auth.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.display_name, coalesce(p.description, ''), p.created_by, p.created_at, p.updated_at
		from projects p
		join memberships m on m.project_id = p.id
		where m.account_id = $1
		order by p.created_at desc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Project
	for rows.Next() {
		var p auth.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

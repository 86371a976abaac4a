package pg

import (
	"context"
	"database/sql"
	"errors"

	"taskhive.org/internal/auth"
)

type taskStore struct {
	db *sql.DB
}

var _ auth.TaskStore = (*taskStore)(nil)

const taskColumns = `
	id, project_id, title, coalesce(description, ''), status, coalesce(assigned_to, ''), created_at, updated_at`

func (s *taskStore) Find(ctx context.Context, id string) (*auth.Task, error) {
	var t auth.Task
	err := s.db.QueryRowContext(ctx, `
		select `+taskColumns+`
		from tasks
		where id = $1
	`, id).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *taskStore) ListByProject(ctx context.Context, projectID string) ([]*auth.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+`
		from tasks
		where project_id = $1
		order by created_at desc
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Task
	for rows.Next() {
		var t auth.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.AssignedTo, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *taskStore) Create(ctx context.Context, t *auth.Task) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tasks (id, project_id, title, description, status, assigned_to, created_at, updated_at)
		values ($1, $2, $3, nullif($4, ''), $5, nullif($6, ''), $7, $8)
	`, t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.AssignedTo, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *taskStore) Update(ctx context.Context, t *auth.Task) error {
	res, err := s.db.ExecContext(ctx, `
		update tasks
		set title = $2,
		    description = nullif($3, ''),
		    status = $4,
		    assigned_to = nullif($5, ''),
		    updated_at = now()
		where id = $1
	`, t.ID, t.Title, t.Description, t.Status, t.AssignedTo)
	if err != nil {
		return mapPgError(err)
	}
	return requireRow(res)
}

func (s *taskStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

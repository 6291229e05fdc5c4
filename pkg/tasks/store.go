package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrNotAssignee      = errors.New("user is not an assignee of this task")
	ErrAlreadyResponded = errors.New("user already responded to this task")
	ErrEmptyReason      = errors.New("refusal reason is required")
	ErrUnknownResponse  = errors.New("response must be accepted or rejected")
	ErrResponseNotFound = errors.New("task response not found")
)

// Store handles task persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new task store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transactional workflows
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the task tables. Unique constraints on
// task_responses(task_id, user_id) and task_reminders(task_id, reminder_type,
// reminder_day) carry the at-most-once invariants; application checks are
// fast paths only.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'TODO',
		due_date TIMESTAMP WITH TIME ZONE,
		project_id BIGINT REFERENCES projects(id) ON DELETE CASCADE,
		created_by BIGINT NOT NULL,
		refusal_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);

	CREATE TABLE IF NOT EXISTS task_assignees (
		id BIGSERIAL PRIMARY KEY,
		task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		UNIQUE (task_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS task_responses (
		id BIGSERIAL PRIMARY KEY,
		task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		response VARCHAR(20) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (task_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS reject_tokens (
		token VARCHAR(64) PRIMARY KEY,
		task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		used_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS task_reminders (
		id BIGSERIAL PRIMARY KEY,
		task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		reminder_type VARCHAR(20) NOT NULL,
		reminder_day DATE NOT NULL,
		sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (task_id, reminder_type, reminder_day)
	);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

const taskColumns = `
	t.id, t.title, t.description, t.status, t.due_date, t.project_id,
	t.created_by, t.refusal_reason,
	COALESCE(array_agg(ta.user_id) FILTER (WHERE ta.user_id IS NOT NULL), '{}') AS assignee_ids,
	t.created_at, t.updated_at
`

func scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	var t Task
	assignees := pq.Int64Array{}
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.ProjectID,
		&t.CreatedBy, &t.RefusalReason, &assignees, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AssigneeIDs = []int64(assignees)
	return &t, nil
}

// CreateTask inserts a task and its assignee links in one transaction
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.AssigneeIDs == nil {
		t.AssigneeIDs = []int64{}
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO tasks (title, description, status, due_date, project_id, created_by, refusal_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8)
		RETURNING id
	`, t.Title, t.Description, t.Status, t.DueDate, t.ProjectID, t.CreatedBy, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	for _, userID := range t.AssigneeIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_assignees (task_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (task_id, user_id) DO NOTHING
		`, t.ID, userID); err != nil {
			return fmt.Errorf("failed to assign task: %w", err)
		}
	}

	return tx.Commit()
}

// GetTask fetches one task with its assignee ids aggregated
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN task_assignees ta ON ta.task_id = t.id
		WHERE t.id = $1
		GROUP BY t.id
	`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks lists tasks matching the filter, newest first
func (s *Store) ListTasks(ctx context.Context, filter Filter) ([]*Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN task_assignees ta ON ta.task_id = t.id
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND t.project_id = $%d", argCount)
		args = append(args, *filter.ProjectID)
		argCount++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND t.status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}
	if filter.AssigneeID != nil {
		query += fmt.Sprintf(" AND t.id IN (SELECT task_id FROM task_assignees WHERE user_id = $%d)", argCount)
		args = append(args, *filter.AssigneeID)
	}

	query += " GROUP BY t.id ORDER BY t.created_at DESC, t.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	list := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// UpdateTask applies a patch. When the patch carries assignee ids the full
// assignee set is replaced in the same transaction.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var updatedID int64
	err = tx.QueryRowContext(ctx, `
		UPDATE tasks SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			due_date = COALESCE($5, due_date),
			project_id = COALESCE($6, project_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`, id, patch.Title, patch.Description, patch.Status, patch.DueDate, patch.ProjectID).Scan(&updatedID)

	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if patch.AssigneeIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id = $1`, id); err != nil {
			return nil, fmt.Errorf("failed to replace assignees: %w", err)
		}
		for _, userID := range *patch.AssigneeIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO task_assignees (task_id, user_id)
				VALUES ($1, $2)
				ON CONFLICT (task_id, user_id) DO NOTHING
			`, id, userID); err != nil {
				return nil, fmt.Errorf("failed to replace assignees: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}

	return s.GetTask(ctx, id)
}

// DeleteTask removes a task and, via cascade, its assignees and responses
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// IsAssignee reports whether the user is linked to the task
func (s *Store) IsAssignee(ctx context.Context, taskID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM task_assignees WHERE task_id = $1 AND user_id = $2)
	`, taskID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check assignee: %w", err)
	}
	return exists, nil
}

// GetResponse fetches the recorded response of one user on one task
func (s *Store) GetResponse(ctx context.Context, taskID, userID int64) (*TaskResponse, error) {
	var tr TaskResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, user_id, response, reason, created_at
		FROM task_responses
		WHERE task_id = $1 AND user_id = $2
	`, taskID, userID).Scan(&tr.ID, &tr.TaskID, &tr.UserID, &tr.Response, &tr.Reason, &tr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrResponseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task response: %w", err)
	}
	return &tr, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

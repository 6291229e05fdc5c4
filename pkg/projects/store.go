package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrStageNotFound   = errors.New("stage not found")
)

// Store handles project and stage persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new project store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the projects and stages tables
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS projects (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'PLANNING',
		manager_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		created_by BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
	CREATE INDEX IF NOT EXISTS idx_projects_manager_id ON projects(manager_id);

	CREATE TABLE IF NOT EXISTS stages (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		stage_order INTEGER NOT NULL DEFAULT 0,
		duration_days INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'PLANNING',
		dependencies BIGINT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_stages_project_id ON stages(project_id);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

const projectColumns = `
	p.id, p.title, p.description, p.status, p.manager_id,
	COALESCE(u.name, '') AS manager_name,
	p.created_by, p.created_at, p.updated_at
`

func scanProject(row interface{ Scan(...interface{}) error }) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Status, &p.ManagerID,
		&p.ManagerName, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a project and fills in its id and timestamps
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (title, description, status, manager_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.Title, p.Description, p.Status, p.ManagerID, p.CreatedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject fetches one project with its manager's name joined in
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN users u ON u.id = p.manager_id
		WHERE p.id = $1
	`, id)

	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects lists all projects, newest first
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN users u ON u.id = p.manager_id
		ORDER BY p.created_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject applies a patch and returns the updated row with display
// fields re-joined. Nil patch fields leave the stored value untouched.
func (s *Store) UpdateProject(ctx context.Context, id int64, patch ProjectPatch) (*Project, error) {
	var updatedID int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE projects SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			manager_id = COALESCE($5, manager_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`, id, patch.Title, patch.Description, patch.Status, patch.ManagerID).Scan(&updatedID)

	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return s.GetProject(ctx, updatedID)
}

// DeleteProject removes a project and, via cascade, its stages
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

const stageColumns = `id, project_id, name, stage_order, duration_days, status, dependencies, created_at, updated_at`

func scanStage(row interface{ Scan(...interface{}) error }) (*Stage, error) {
	var st Stage
	deps := pq.Int64Array{}
	err := row.Scan(
		&st.ID, &st.ProjectID, &st.Name, &st.StageOrder, &st.DurationDays,
		&st.Status, &deps, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Dependencies = []int64(deps)
	return &st, nil
}

// CreateStage inserts a stage under a project
func (s *Store) CreateStage(ctx context.Context, st *Stage) error {
	if st.Status == "" {
		st.Status = StatusPlanning
	}
	if st.Dependencies == nil {
		st.Dependencies = []int64{}
	}
	now := time.Now()
	st.CreatedAt = now
	st.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stages (project_id, name, stage_order, duration_days, status, dependencies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, st.ProjectID, st.Name, st.StageOrder, st.DurationDays, st.Status,
		pq.Array(st.Dependencies), st.CreatedAt, st.UpdatedAt).Scan(&st.ID)

	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("failed to create stage: %w", err)
	}
	return nil
}

// ListStages lists a project's stages in stage order
func (s *Store) ListStages(ctx context.Context, projectID int64) ([]*Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stageColumns+`
		FROM stages
		WHERE project_id = $1
		ORDER BY stage_order ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	stages := make([]*Stage, 0)
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// UpdateStage applies a patch to a stage scoped to its project
func (s *Store) UpdateStage(ctx context.Context, projectID, stageID int64, patch StagePatch) (*Stage, error) {
	var deps interface{}
	if patch.Dependencies != nil {
		deps = pq.Array(*patch.Dependencies)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE stages SET
			name = COALESCE($3, name),
			stage_order = COALESCE($4, stage_order),
			duration_days = COALESCE($5, duration_days),
			status = COALESCE($6, status),
			dependencies = COALESCE($7, dependencies),
			updated_at = NOW()
		WHERE id = $2 AND project_id = $1
		RETURNING `+stageColumns+`
	`, projectID, stageID, patch.Name, patch.StageOrder, patch.DurationDays, patch.Status, deps)

	st, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, ErrStageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update stage: %w", err)
	}
	return st, nil
}

// DeleteStage removes a stage scoped to its project
func (s *Store) DeleteStage(ctx context.Context, projectID, stageID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM stages WHERE id = $2 AND project_id = $1`, projectID, stageID)
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	if affected == 0 {
		return ErrStageNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}

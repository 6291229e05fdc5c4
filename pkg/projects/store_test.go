package projects

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func projectRows(p *Project) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "status", "manager_id", "manager_name", "created_by", "created_at", "updated_at",
	}).AddRow(p.ID, p.Title, p.Description, p.Status, p.ManagerID, p.ManagerName, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
}

func TestStore_CreateProject_DefaultsToPlanning(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	project := &Project{Title: "Website relaunch", CreatedBy: 1}

	mock.ExpectQuery("INSERT INTO projects").
		WithArgs("Website relaunch", "", StatusPlanning, nil, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	require.NoError(t, store.CreateProject(context.Background(), project))
	assert.Equal(t, int64(4), project.ID)
	assert.Equal(t, StatusPlanning, project.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetProject_JoinsManagerName(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	managerID := int64(2)
	now := time.Now()
	stored := &Project{ID: 4, Title: "Website relaunch", Status: StatusInProgress,
		ManagerID: &managerID, ManagerName: "Bob", CreatedBy: 1, CreatedAt: now, UpdatedAt: now}

	mock.ExpectQuery("FROM projects p").
		WithArgs(int64(4)).
		WillReturnRows(projectRows(stored))

	project, err := store.GetProject(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Bob", project.ManagerName)
}

func TestStore_GetProject_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("FROM projects p").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetProject(context.Background(), 99)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestStore_UpdateProject_Patch(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()
	status := StatusOnHold

	mock.ExpectQuery("UPDATE projects SET").
		WithArgs(int64(4), nil, nil, status, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery("FROM projects p").
		WithArgs(int64(4)).
		WillReturnRows(projectRows(&Project{ID: 4, Title: "Website relaunch", Status: status, CreatedBy: 1, CreatedAt: now, UpdatedAt: now}))

	project, err := store.UpdateProject(context.Background(), 4, ProjectPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, StatusOnHold, project.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteProject_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectExec("DELETE FROM projects").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.DeleteProject(context.Background(), 99), ErrProjectNotFound)
}

func TestStore_CreateStage_MissingProject(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("INSERT INTO stages").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "stages_project_id_fkey"})

	err := store.CreateStage(context.Background(), &Stage{ProjectID: 99, Name: "Design"})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestStore_ListStages(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()

	mock.ExpectQuery("FROM stages").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "name", "stage_order", "duration_days", "status", "dependencies", "created_at", "updated_at",
		}).
			AddRow(1, 4, "Design", 1, 5, "COMPLETED", "{}", now, now).
			AddRow(2, 4, "Build", 2, 10, "IN_PROGRESS", "{1}", now, now))

	stages, err := store.ListStages(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Empty(t, stages[0].Dependencies)
	assert.Equal(t, []int64{1}, stages[1].Dependencies)
}

func TestStore_UpdateStage_ScopedToProject(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	// Stage 7 exists but belongs to another project
	mock.ExpectQuery("UPDATE stages SET").
		WithArgs(int64(4), int64(7), nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.UpdateStage(context.Background(), 4, 7, StagePatch{})
	assert.ErrorIs(t, err, ErrStageNotFound)
}

package tasks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func taskRowColumns() []string {
	return []string{
		"id", "title", "description", "status", "due_date", "project_id",
		"created_by", "refusal_reason", "assignee_ids", "created_at", "updated_at",
	}
}

func TestStore_CreateTask_WithAssignees(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO tasks").
		WithArgs("Ship v2", "", StatusTodo, nil, nil, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("INSERT INTO task_assignees").
		WithArgs(int64(9), int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO task_assignees").
		WithArgs(int64(9), int64(6)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	task := &Task{Title: "Ship v2", CreatedBy: 1, AssigneeIDs: []int64{5, 6}}
	require.NoError(t, store.CreateTask(context.Background(), task))
	assert.Equal(t, int64(9), task.ID)
	assert.Equal(t, StatusTodo, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetTask_AggregatesAssignees(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()

	mock.ExpectQuery("FROM tasks t").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns()).
			AddRow(9, "Ship v2", "", "TODO", nil, nil, 1, "", "{5,6}", now, now))

	task, err := store.GetTask(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, task.AssigneeIDs)
}

func TestStore_GetTask_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("FROM tasks t").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns()))

	_, err := store.GetTask(context.Background(), 99)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_ListTasks_FilterByAssignee(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()
	assignee := int64(5)

	mock.ExpectQuery("AND t.id IN").
		WithArgs(assignee).
		WillReturnRows(sqlmock.NewRows(taskRowColumns()).
			AddRow(9, "Ship v2", "", "IN_PROGRESS", nil, nil, 1, "", "{5}", now, now))

	list, err := store.ListTasks(context.Background(), Filter{AssigneeID: &assignee})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(9), list[0].ID)
}

func TestStore_UpdateTask_ReplacesAssignees(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)
	now := time.Now()
	assignees := []int64{7}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE tasks SET").
		WithArgs(int64(9), nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec("DELETE FROM task_assignees").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO task_assignees").
		WithArgs(int64(9), int64(7)).
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM tasks t").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(taskRowColumns()).
			AddRow(9, "Ship v2", "", "TODO", nil, nil, 1, "", "{7}", now, now))

	task, err := store.UpdateTask(context.Background(), 9, TaskPatch{AssigneeIDs: &assignees})
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, task.AssigneeIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_IsAssignee(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(9), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.IsAssignee(context.Background(), 9, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_ConsumeRejectToken_SingleUse(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("UPDATE reject_tokens").
		WithArgs("tok-1", int64(9), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("tok-1"))
	// Second consumption finds no unused row
	mock.ExpectQuery("UPDATE reject_tokens").
		WithArgs("tok-1", int64(9), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"token"}))

	require.NoError(t, store.ConsumeRejectToken(context.Background(), "tok-1", 9))
	assert.ErrorIs(t, store.ConsumeRejectToken(context.Background(), "tok-1", 9), ErrInvalidRejectToken)
}

func TestStore_ConsumeRejectToken_WrongTask(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := NewStore(db)

	mock.ExpectQuery("UPDATE reject_tokens").
		WithArgs("tok-1", int64(10), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"token"}))

	assert.ErrorIs(t, store.ConsumeRejectToken(context.Background(), "tok-1", 10), ErrInvalidRejectToken)
}

package projects

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/contextkeys"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

func setupProjectHandlers(t *testing.T) (sqlmock.Sqlmock, *mux.Router) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(NewStore(db), audit.NewStore(db), logger)

	router := mux.NewRouter()
	h.RegisterRoutes(router, func(rbac.Resource, rbac.Action) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	})
	return mock, router
}

func authedRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	ctx := contextkeys.WithAuth(req.Context(), &auth.Context{UserID: 1, Role: auth.RoleManager})
	return req.WithContext(ctx)
}

func TestHandlers_CreateProject(t *testing.T) {
	mock, router := setupProjectHandlers(t)

	mock.ExpectQuery("INSERT INTO projects").
		WithArgs("Website relaunch", "", StatusPlanning, nil, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	body := bytes.NewBufferString(`{"title": "Website relaunch"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/projects", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"PLANNING"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_CreateProject_MissingTitle(t *testing.T) {
	_, router := setupProjectHandlers(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/projects", bytes.NewBufferString(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title is required")
}

func TestHandlers_CreateProject_InvalidStatus(t *testing.T) {
	_, router := setupProjectHandlers(t)

	body := bytes.NewBufferString(`{"title": "X", "status": "DONE"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/projects", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_GetProject_NotFound(t *testing.T) {
	mock, router := setupProjectHandlers(t)

	mock.ExpectQuery("FROM projects p").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/projects/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "project not found")
}

func TestHandlers_UpdateProject_EmptyTitleRejected(t *testing.T) {
	_, router := setupProjectHandlers(t)

	body := bytes.NewBufferString(`{"title": ""}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, "/projects/4", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_DeleteProject(t *testing.T) {
	mock, router := setupProjectHandlers(t)

	mock.ExpectExec("DELETE FROM projects").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/projects/4", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_CreateStage(t *testing.T) {
	mock, router := setupProjectHandlers(t)

	mock.ExpectQuery("INSERT INTO stages").
		WithArgs(int64(4), "Design", 1, 5, StatusPlanning, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	body := bytes.NewBufferString(`{"name": "Design", "order": 1, "duration_days": 5}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/projects/4/stages", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dependencies":[]`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_ListStages(t *testing.T) {
	mock, router := setupProjectHandlers(t)
	now := time.Now()

	mock.ExpectQuery("FROM stages").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "name", "stage_order", "duration_days", "status", "dependencies", "created_at", "updated_at",
		}).AddRow(1, 4, "Design", 1, 5, "PLANNING", "{}", now, now))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/projects/4/stages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Design"`)
}

func TestHandlers_DeleteStage_NotFound(t *testing.T) {
	mock, router := setupProjectHandlers(t)

	mock.ExpectExec("DELETE FROM stages").
		WithArgs(int64(4), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/projects/4/stages/7", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

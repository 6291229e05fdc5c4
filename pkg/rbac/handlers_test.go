package rbac

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/observability"
)

type stubChecker struct {
	invalidated int
}

func (s *stubChecker) Check(ctx context.Context, role auth.Role, resource Resource, action Action) (*CheckResult, error) {
	return &CheckResult{Allowed: true}, nil
}

func (s *stubChecker) Invalidate() { s.invalidated++ }

func setupHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *stubChecker, *mux.Router) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	checker := &stubChecker{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(NewStore(db), checker, logger)

	router := mux.NewRouter()
	h.RegisterRoutes(router, allowAllGuard)
	return h, mock, checker, router
}

func allowAllGuard(Resource, Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func TestHandlers_ListRoles(t *testing.T) {
	_, mock, _, router := setupHandlers(t)

	mock.ExpectQuery("SELECT id, name, description FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description"}).
			AddRow(1, "admin", ""))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin"`)
}

func TestHandlers_ListPermissions_Empty(t *testing.T) {
	_, mock, _, router := setupHandlers(t)

	mock.ExpectQuery("SELECT id, name, resource, action FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/permissions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "empty list encodes as [] not null")
}

func TestHandlers_CreateGrant(t *testing.T) {
	_, mock, checker, router := setupHandlers(t)

	mock.ExpectQuery("INSERT INTO role_permissions").
		WithArgs(int64(2), int64(10), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	body := bytes.NewBufferString(`{"role_id": 2, "permission_id": 10}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/role-permissions", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, checker.invalidated, "grant changes drop the permission cache")
}

func TestHandlers_CreateGrant_MissingFields(t *testing.T) {
	_, _, checker, router := setupHandlers(t)

	body := bytes.NewBufferString(`{"role_id": 2}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/role-permissions", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, checker.invalidated)
}

func TestHandlers_CreateGrant_Duplicate(t *testing.T) {
	_, mock, _, router := setupHandlers(t)

	mock.ExpectQuery("INSERT INTO role_permissions").
		WillReturnError(&pq.Error{Code: "23505"})

	body := bytes.NewBufferString(`{"role_id": 2, "permission_id": 10}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/role-permissions", body))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlers_DeleteGrant_NotFound(t *testing.T) {
	_, mock, checker, router := setupHandlers(t)

	mock.ExpectExec("DELETE FROM role_permissions").
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/role-permissions/99", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, checker.invalidated)
}

func TestHandlers_DeleteGrant(t *testing.T) {
	_, mock, checker, router := setupHandlers(t)

	mock.ExpectExec("DELETE FROM role_permissions").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/role-permissions/5", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, checker.invalidated)
}

package users

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/contextkeys"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

func setupUserHandlers(t *testing.T) (sqlmock.Sqlmock, *mux.Router) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(auth.NewStore(db), NewSettingsStore(db), audit.NewStore(db), logger)

	router := mux.NewRouter()
	h.RegisterRoutes(router, func(rbac.Resource, rbac.Action) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	})
	return mock, router
}

func asUser(userID int64, req *http.Request) *http.Request {
	ctx := contextkeys.WithAuth(req.Context(), &auth.Context{UserID: userID, Role: auth.RoleAdmin})
	return req.WithContext(ctx)
}

func userRows(id int64, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "email", "password_hash", "role", "phone", "created_at", "updated_at",
	}).AddRow(id, "Eve", email, "h", auth.StoredRoleEmployee, "", now, now)
}

func TestHandlers_GetProfile(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs(int64(5)).
		WillReturnRows(userRows(5, "eve@x.com"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodGet, "/profile", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"eve@x.com"`)
	assert.NotContains(t, rec.Body.String(), "password_hash", "hash never leaves the API")
}

func TestHandlers_UpdateProfile_ShortPassword(t *testing.T) {
	_, router := setupUserHandlers(t)

	body := bytes.NewBufferString(`{"password": "short"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodPut, "/profile", body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_CreateUser(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	body := bytes.NewBufferString(`{"name": "Mel", "email": "mel@x.com", "password": "longenough", "role": "project_manager"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPost, "/users", body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"PROJECT_MANAGER"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_CreateUser_DuplicateEmail(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	body := bytes.NewBufferString(`{"name": "Mel", "email": "mel@x.com", "password": "longenough"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPost, "/users", body)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already registered")
}

func TestHandlers_CreateUser_InvalidEmail(t *testing.T) {
	_, router := setupUserHandlers(t)

	body := bytes.NewBufferString(`{"name": "Mel", "email": "not-an-email", "password": "longenough"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPost, "/users", body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email address")
}

func TestHandlers_UpdateUser_InvalidEmail(t *testing.T) {
	_, router := setupUserHandlers(t)

	body := bytes.NewBufferString(`{"email": "nope"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPut, "/users/10", body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email address")
}

func TestHandlers_CreateUser_InvalidRole(t *testing.T) {
	_, router := setupUserHandlers(t)

	body := bytes.NewBufferString(`{"name": "Mel", "email": "mel@x.com", "password": "longenough", "role": "wizard"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPost, "/users", body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_UpdateUser_RoleChange(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectQuery("UPDATE users SET").
		WillReturnRows(userRows(10, "mel@x.com"))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	body := bytes.NewBufferString(`{"role": "admin"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodPut, "/users/10", body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_DeleteUser_SelfForbidden(t *testing.T) {
	_, router := setupUserHandlers(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodDelete, "/users/5", nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot delete your own account")
}

func TestHandlers_DeleteUser(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectExec("DELETE FROM users").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(1, httptest.NewRequest(http.MethodDelete, "/users/10", nil)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_UpdateSettings_Partial(t *testing.T) {
	mock, router := setupUserHandlers(t)

	mock.ExpectQuery("FROM user_settings").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "theme", "language", "timezone", "updated_at",
		}).AddRow(5, "light", "en", "UTC", time.Now()))
	mock.ExpectQuery("INSERT INTO user_settings").
		WithArgs(int64(5), "dark", "en", "UTC").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	body := bytes.NewBufferString(`{"theme": "dark"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodPut, "/settings", body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dark"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package notify

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

	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/contextkeys"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/rbac"
)

func setupPrefHandlers(t *testing.T) (sqlmock.Sqlmock, *mux.Router) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(NewStore(db), logger)

	router := mux.NewRouter()
	h.RegisterRoutes(router, func(rbac.Resource, rbac.Action) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	})
	return mock, router
}

func asUser(userID int64, req *http.Request) *http.Request {
	ctx := contextkeys.WithAuth(req.Context(), &auth.Context{UserID: userID, Role: auth.RoleEmployee})
	return req.WithContext(ctx)
}

func TestHandlers_Get_ReturnsDefaultsForNewUser(t *testing.T) {
	mock, router := setupPrefHandlers(t)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "email_enabled", "sms_enabled", "whatsapp_enabled", "updated_at",
		}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodGet, "/notification-preferences", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email_enabled":true`)
}

func TestHandlers_Put_PartialUpdate(t *testing.T) {
	mock, router := setupPrefHandlers(t)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs(int64(5)).
		WillReturnRows(prefRow(true, true, true))
	// Only sms flips; the other flags keep their stored values
	mock.ExpectQuery("INSERT INTO notification_preferences").
		WithArgs(int64(5), true, false, true).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	body := bytes.NewBufferString(`{"sms_enabled": false}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(5, httptest.NewRequest(http.MethodPut, "/notification-preferences", body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sms_enabled":false`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Get_RequiresAuth(t *testing.T) {
	_, router := setupPrefHandlers(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notification-preferences", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

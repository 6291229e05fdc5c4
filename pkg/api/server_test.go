package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/config"
	"github.com/taskboard/taskboard/pkg/observability"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:       "127.0.0.1",
			Port:       "0",
			HealthPort: "0",
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			TokenTTL:  time.Hour,
		},
		Storage: config.StorageConfig{
			MaxUploadBytes: 1 << 20,
		},
		Frontend: config.FrontendConfig{
			BaseURL:        "http://app.local",
			AllowedOrigins: []string{"*"},
		},
	}
}

func setupServer(t *testing.T) (sqlmock.Sqlmock, *Server) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	server, err := NewServer(testConfig(), Dependencies{DB: db}, logger)
	require.NoError(t, err)
	return mock, server
}

func TestServer_ProtectedRouteRequiresToken(t *testing.T) {
	_, server := setupServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestServer_UnknownRouteIsJSON404(t *testing.T) {
	_, server := setupServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no-such-route", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "route not found")
}

func TestServer_RequestIDHeaderSet(t *testing.T) {
	_, server := setupServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/no-such-route", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_CORSPreflight(t *testing.T) {
	_, server := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/projects", nil)
	req.Header.Set("Origin", "http://app.local")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_AuthorizedRequestFlowsToHandler(t *testing.T) {
	mock, server := setupServer(t)

	// Permission set load for the employee role, then the handler query
	mock.ExpectQuery("FROM permissions p").
		WithArgs("employee").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action"}).
			AddRow(1, "View projects", "projects", "read"))
	mock.ExpectQuery("FROM projects p").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "status", "manager_id", "manager_name",
			"created_by", "created_at", "updated_at",
		}))

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Generate(&auth.User{ID: 5, Email: "eve@x.com", Role: auth.StoredRoleEmployee})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_DeniedWithoutGrant(t *testing.T) {
	mock, server := setupServer(t)

	// Employee role with no stored grants is denied everything
	mock.ExpectQuery("FROM permissions p").
		WithArgs("employee").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "resource", "action"}))

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Generate(&auth.User{ID: 5, Email: "eve@x.com", Role: auth.StoredRoleEmployee})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/projects/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")
}

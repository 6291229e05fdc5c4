package documents

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

// memObjectStore is an in-memory ObjectStorage for handler tests
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}}
}

func (m *memObjectStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjectStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjectStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func setupDocHandlers(t *testing.T, maxBytes int64) (sqlmock.Sqlmock, *memObjectStore, *mux.Router) {
	t.Helper()
	db, mock := setupMockDB(t)
	t.Cleanup(func() { db.Close() })

	objects := newMemObjectStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(NewStore(db), objects, audit.NewStore(db), logger, nil, maxBytes)

	router := mux.NewRouter()
	h.RegisterRoutes(router, func(rbac.Resource, rbac.Action) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	})
	return mock, objects, router
}

func asUser(userID int64, req *http.Request) *http.Request {
	ctx := contextkeys.WithAuth(req.Context(), &auth.Context{UserID: userID, Role: auth.RoleEmployee})
	return req.WithContext(ctx)
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestHandlers_Upload(t *testing.T) {
	mock, objects, router := setupDocHandlers(t, 1<<20)

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	body, contentType := multipartBody(t, "report.pdf", "pdf bytes", map[string]string{"project_id": "3"})
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, req))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"report.pdf"`)
	assert.Equal(t, 1, objects.count(), "blob stored")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Upload_TooLarge(t *testing.T) {
	_, objects, router := setupDocHandlers(t, 16)

	body, contentType := multipartBody(t, "big.bin", strings.Repeat("x", 1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, req))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, objects.count(), "nothing stored")
}

func TestHandlers_Upload_MissingFilePart(t *testing.T) {
	_, _, router := setupDocHandlers(t, 1<<20)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("project_id", "3"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, req))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Download_StreamsStoredObject(t *testing.T) {
	mock, objects, router := setupDocHandlers(t, 1<<20)
	now := time.Now()

	require.NoError(t, objects.Put(context.Background(), "documents/k1/notes.txt",
		strings.NewReader("hello"), "text/plain"))

	mock.ExpectQuery("FROM documents d").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(documentRowColumns()).
			AddRow(1, "notes.txt", "text/plain", 5, "documents/k1/notes.txt", "", nil, nil, 7, "Eve", now))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, httptest.NewRequest(http.MethodGet, "/documents/1/download", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")
}

func TestHandlers_Download_RedirectsLinkDocument(t *testing.T) {
	mock, _, router := setupDocHandlers(t, 1<<20)
	now := time.Now()

	mock.ExpectQuery("FROM documents d").
		WillReturnRows(sqlmock.NewRows(documentRowColumns()).
			AddRow(2, "design doc", "", 0, "", "https://docs.example.com/d/1", nil, nil, 7, "Eve", now))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, httptest.NewRequest(http.MethodGet, "/documents/2/download", nil)))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://docs.example.com/d/1", rec.Header().Get("Location"))
}

func TestHandlers_Delete_RemovesStoredObject(t *testing.T) {
	mock, objects, router := setupDocHandlers(t, 1<<20)
	now := time.Now()

	require.NoError(t, objects.Put(context.Background(), "documents/k1/notes.txt",
		strings.NewReader("hello"), "text/plain"))

	mock.ExpectQuery("FROM documents d").
		WillReturnRows(sqlmock.NewRows(documentRowColumns()).
			AddRow(1, "notes.txt", "text/plain", 5, "documents/k1/notes.txt", "", nil, nil, 7, "Eve", now))
	mock.ExpectExec("DELETE FROM documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, httptest.NewRequest(http.MethodDelete, "/documents/1", nil)))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, objects.count(), "blob removed with the record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Create_LinkDocument(t *testing.T) {
	mock, _, router := setupDocHandlers(t, 1<<20)

	mock.ExpectQuery("INSERT INTO documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))
	mock.ExpectQuery("INSERT INTO activity_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	body := bytes.NewBufferString(`{"name": "spec", "file_url": "https://docs.example.com/spec"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, httptest.NewRequest(http.MethodPost, "/documents", body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlers_Create_MissingURL(t *testing.T) {
	_, _, router := setupDocHandlers(t, 1<<20)

	body := bytes.NewBufferString(`{"name": "spec"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(7, httptest.NewRequest(http.MethodPost, "/documents", body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

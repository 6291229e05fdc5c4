package httputil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, 404, "project not found")

	assert.Equal(t, 404, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "project not found", body["error"])
}

func TestWriteInternalError_Generic(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w)

	assert.Equal(t, 500, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestWriteConflictWith(t *testing.T) {
	w := httptest.NewRecorder()
	WriteConflictWith(w, "already responded", "accepted")

	assert.Equal(t, 409, w.Code)

	var body ConflictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "already responded", body.Error)
	assert.Equal(t, "accepted", body.ExistingResponse)
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteCreated(w, map[string]int64{"id": 7}))

	assert.Equal(t, 201, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quillhaven/docsmith/internal/llm"
	"github.com/quillhaven/docsmith/internal/storage"
	"github.com/quillhaven/docsmith/internal/tools/generate"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := NewServer(logger, "test", t.TempDir())
	require.NoError(t, err)
	return s
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "test", payload["version"])
}

func TestUploadDocument(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "file", "notes.md", "# Title\n\nIntro text.\n\n## Details\n\nMore text.\n")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "notes.md", payload["filename"])
	assert.Equal(t, "text", payload["format"])
	assert.Contains(t, payload["markdown"], "# Title")

	sections, ok := payload["sections"].([]any)
	require.True(t, ok)
	require.Len(t, sections, 2)
	first := sections[0].(map[string]any)
	assert.Equal(t, "Title", first["title"])
}

func TestUploadDocumentUnsupportedType(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "file", "archive.zip", "not a document")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "unsupported document type")
}

func TestUploadDocumentMissingFile(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "wrong_field", "notes.md", "# Title")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
}

func TestGenerateValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "invalid JSON",
			body:     "{not json",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid JSON body",
		},
		{
			name:     "missing request",
			body:     `{"report_type": "long"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "missing required field: request",
		},
		{
			name:     "bad report type",
			body:     `{"request": "write a report", "report_type": "medium"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid report_type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.wantCode, rec.Code)
			payload := decodeBody(t, rec)
			assert.Equal(t, false, payload["success"])
			assert.Contains(t, payload["error"], tc.wantErr)
		})
	}
}

func TestGenerateRequiresModelConfig(t *testing.T) {
	s := newTestServer(t)
	t.Setenv(llm.EnvAPIBase, "")
	t.Setenv(llm.EnvModel, "")
	t.Setenv(llm.EnvAPIKey, "")

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"request": "write a report"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
}

func TestTaskStatus(t *testing.T) {
	t.Setenv(generate.TasksDirEnvVar, t.TempDir())
	s := newTestServer(t)

	store := generate.NewTaskStore()
	_, err := store.NewTask("task-abc", generate.InitialRequest{Request: "write a report"}, generate.ReportTypeLong)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/task-abc/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, "task-abc", payload["taskId"])
	assert.Equal(t, generate.StatusPending, payload["overallStatus"])
}

func TestTaskStatusNotFound(t *testing.T) {
	t.Setenv(generate.TasksDirEnvVar, t.TempDir())
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/nope/status", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
}

func TestConvertRejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartBody(t, "file", "report.pdf", "%PDF-1.7")
	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "expected .md or .doc")
}

func TestStorageStatsUnconfigured(t *testing.T) {
	t.Setenv(storage.EnvEndpoint, "")
	t.Setenv(storage.EnvAccessKey, "")
	t.Setenv(storage.EnvSecretKey, "")
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/storage/stats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "not configured")
}

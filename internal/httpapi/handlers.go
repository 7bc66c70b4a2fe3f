package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quillhaven/docsmith/internal/storage"
	"github.com/quillhaven/docsmith/internal/tools/convert"
	"github.com/quillhaven/docsmith/internal/tools/extract"
	"github.com/quillhaven/docsmith/internal/tools/generate"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleUploadDocument accepts a multipart document upload and returns
// its markdown rendition plus the heading-delimited section outline.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	filePath, fileName, cleanup, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	format := extract.DetectFormat(filePath)
	if format == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported document type: %s", fileName))
		return
	}

	text, err := extract.ReadText(filePath, format)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("failed to extract %s: %w", fileName, err))
		return
	}
	sections := extract.SplitSections(text)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": fileName,
		"format":   format,
		"markdown": text,
		"sections": sections,
	})
}

type generateRequest struct {
	Request     string `json:"request"`
	ChatHistory string `json:"chat_history"`
	ReportType  string `json:"report_type"`
}

// handleGenerate starts a generation task in the background and returns
// the task ID for polling.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing required field: request"))
		return
	}
	reportType := req.ReportType
	if reportType == "" {
		reportType = generate.ReportTypeLong
	}
	if reportType != generate.ReportTypeLong && reportType != generate.ReportTypeShort {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid report_type %q (expected 'long' or 'short')", reportType))
		return
	}

	generator, err := generate.NewGenerator(s.logger)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	taskID := uuid.NewString()
	initial := generate.InitialRequest{ChatHistory: req.ChatHistory, Request: req.Request}
	if _, err := generator.Store().NewTask(taskID, initial, reportType); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Detached from the request context: the task outlives this response.
	go generator.Run(context.Background(), taskID)

	s.logger.WithField("task_id", taskID).Info("Generation task started via HTTP API")

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"taskId":  taskID,
		"status":  generate.StatusPending,
		"message": "Task started. Poll /api/tasks/{taskId}/status for progress.",
	})
}

// handleTaskStatus returns the condensed summary of a generation task.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	store := generate.NewTaskStore()
	task, err := store.Load(taskID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task.Summary())
}

// handleConvert accepts a .md or .doc upload and converts it to DOCX.
// The converted artifact is uploaded to object storage when configured.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	filePath, fileName, cleanup, err := s.saveUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".md" && ext != ".doc" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported input type %q (expected .md or .doc)", ext))
		return
	}

	outDir := filepath.Join(s.workDir, "converted")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create output directory: %w", err))
		return
	}
	outName := strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".docx"
	outputPath := filepath.Join(outDir, outName)

	switch ext {
	case ".md":
		err = convert.MarkdownToDocx(r.Context(), s.logger, filePath, outputPath)
	case ".doc":
		err = convert.DocToDocx(r.Context(), s.logger, filePath, outputPath)
	}
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("conversion failed: %w", err))
		return
	}

	response := map[string]any{
		"success":            true,
		"original_filename":  fileName,
		"converted_filename": outName,
	}

	store, err := storage.NewFromEnv(s.logger)
	if err != nil {
		s.logger.WithError(err).Warn("Object storage unavailable, returning local result only")
	} else if store.IsAvailable() {
		url, err := store.UploadFile(r.Context(), outputPath, outName)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to upload converted document")
		} else {
			response["url"] = url
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleStorageStats reports object count and total size in the
// configured bucket, optionally scoped by a ?prefix= query parameter.
func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	store, err := storage.NewFromEnv(s.logger)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("object storage unavailable: %w", err))
		return
	}
	if !store.IsAvailable() {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Errorf("object storage is not configured"))
		return
	}

	stats, err := store.Usage(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// saveUpload stages the multipart "file" part in the work directory and
// returns the staged path, the client-supplied base name, and a cleanup
// function.
func (s *Server) saveUpload(r *http.Request) (string, string, func(), error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return "", "", nil, fmt.Errorf("invalid multipart request: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, fmt.Errorf("missing file upload: %w", err)
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return "", "", nil, fmt.Errorf("upload has no usable filename")
	}

	dir, err := os.MkdirTemp(s.workDir, "upload_")
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	filePath := filepath.Join(dir, fileName)
	if err := writeMultipartFile(filePath, file); err != nil {
		cleanup()
		return "", "", nil, err
	}
	return filePath, fileName, cleanup, nil
}

func writeMultipartFile(path string, src multipart.File) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to stage upload: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write upload: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/extract"
	"github.com/hyperjump/kansa/internal/indexer"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/storage"
)

const auditorUnavailable = "Auditor not initialized (LLM or Vector Store missing)"

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// auditBodySlack covers JSON keys and escaping around query and instruction.
const auditBodySlack = 4096

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.config.Server.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.config.Server.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing form field \"file\"")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		s.respondError(w, http.StatusBadRequest, "missing file name")
		return
	}
	if !extract.Supported(name) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
		return
	}

	dest, err := s.saveUpload(name, file)
	if err != nil {
		s.logger.Error("upload: save failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Debug("upload saved", zap.String("path", dest), zap.Int64("size", header.Size))

	// Finish the index mutation even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	n, err := s.indexer.IndexFile(ctx, dest)
	switch {
	case errors.Is(err, indexer.ErrNoText):
		s.respondError(w, http.StatusBadRequest, "No text extracted from PDF")
		return
	case errors.Is(err, models.ErrExtraction):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("upload: indexing failed", zap.String("file", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("upload indexed", zap.String("file", name), zap.Int("chunks", n), zap.String("mode", s.indexer.Mode()))
	s.respondJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully processed " + name,
		"chunks":  n,
	})
}

// saveUpload writes the upload to the data directory, replacing a file of the
// same name.
func (s *Server) saveUpload(name string, src io.Reader) (string, error) {
	dir := s.config.Storage.DataDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	dest := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move upload into place: %w", err)
	}
	return dest, nil
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil || !s.indexAvailable() {
		s.respondError(w, http.StatusServiceUnavailable, auditorUnavailable)
		return
	}
	var req models.AuditRequest
	maxBytes := s.config.Server.MaxRequestBytes
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes)+auditBodySlack)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("request too large (max %d bytes)", maxBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Normalize()
	if err := req.Validate(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("audit request", zap.String("query", req.Query), zap.Int("instruction_length", len(req.Instruction)))

	result, err := s.auditor.Audit(r.Context(), req.Query, req.Instruction)
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusServiceUnavailable, auditorUnavailable)
		return
	case errors.Is(err, models.ErrInvocation):
		s.logger.Error("audit: language model failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "Audit failed: "+err.Error())
		return
	case err != nil:
		s.logger.Error("audit failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "Audit failed: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) indexAvailable() bool {
	return s.index.Loaded() || s.index.Exists()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"llm":          s.auditor != nil,
		"vector_store": s.indexAvailable(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := models.Status{
		Index: s.index.Info(),
		LLM:   s.llmName,
		Retrieval: models.RetrievalSettings{
			K:      s.config.Retrieval.K,
			FetchK: s.config.Retrieval.FetchK,
			Lambda: s.config.Retrieval.Lambda,
		},
		Ingest: models.IngestSettings{
			ChunkSize:    s.config.Ingest.ChunkSize,
			ChunkOverlap: s.config.Ingest.ChunkOverlap,
			Mode:         s.indexer.Mode(),
		},
	}
	if s.watch != nil {
		status.Inbox = s.watch.Directories()
	}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.VectorStorePath, s.config.Storage.DataDir)
	if err == nil {
		status.DiskUsageBytes = &diskBytes
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConfirmUploadRequest is the body for creating an ingestion run
type ConfirmUploadRequest struct {
	EditionID   string `json:"edition_id"`
	VolumeTag   string `json:"volume_tag"`
	ArchiveKey  string `json:"archive_key"`
	ArchiveSize int64  `json:"archive_size"`
}

// PresignRequest is the body for requesting a presigned object URL
type PresignRequest struct {
	Key           string `json:"key"`
	ExpirySeconds int    `json:"expiry_seconds,omitempty"`
}

// PresignResponse carries a presigned retrieval URL
type PresignResponse struct {
	URL string `json:"url"`
}

// DocumentResponse is an extracted document with its ordered blocks
type DocumentResponse struct {
	Document *domain.Document `json:"document"`
	Blocks   []*domain.Block  `json:"blocks"`
}

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			checks["postgres"] = err.Error()
			ready = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if s.queueHost != nil {
		if err := s.queueHost.Ping(r.Context()); err != nil {
			checks["queue"] = err.Error()
			ready = false
		} else {
			checks["queue"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Run endpoints

// handleConfirmUpload creates and enqueues an ingestion run for a confirmed
// archive upload.
func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	var req ConfirmUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := s.ingest.ConfirmUpload(r.Context(), req.EditionID, req.VolumeTag, req.ArchiveKey, req.ArchiveSize)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "edition_id, volume_tag, and archive_key are required")
		case errors.Is(err, domain.ErrRunInProgress):
			writeError(w, http.StatusConflict, "a run is already in progress for this edition and volume")
		case errors.Is(err, domain.ErrEnqueue):
			// The run exists but was marked failed; surface it so the
			// caller can retry rather than re-upload.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error": "run created but enqueue failed",
				"run":   run,
			})
		default:
			writeError(w, http.StatusInternalServerError, "failed to create run")
		}
		return
	}

	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.ingest.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleListRunFiles returns the per-file ledger for a run
func (s *Server) handleListRunFiles(w http.ResponseWriter, r *http.Request) {
	progress, err := s.ingest.ListProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list run files")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"files": progress})
}

// handleProcessBatch runs one time-boxed batch synchronously. This is the
// chunked invocation shape: callers re-invoke until the result reports done.
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingest.ProcessBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, domain.ErrRunTerminal):
			writeError(w, http.StatusConflict, "run already finished")
		case errors.Is(err, domain.ErrRunInProgress):
			writeError(w, http.StatusConflict, "run is being processed elsewhere")
		default:
			writeError(w, http.StatusInternalServerError, "batch processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.ingest.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, domain.ErrRunTerminal):
			writeError(w, http.StatusConflict, "run already completed")
		case errors.Is(err, domain.ErrRunInProgress):
			writeError(w, http.StatusConflict, "run is still being processed")
		case errors.Is(err, domain.ErrEnqueue):
			writeError(w, http.StatusBadGateway, "retry enqueue failed")
		default:
			writeError(w, http.StatusInternalServerError, "retry failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// Edition endpoints

func (s *Server) handleListEditionRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := s.ingest.ListRuns(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "edition id is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// Document endpoints

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, blocks, err := s.ingest.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}

	writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, Blocks: blocks})
}

func (s *Server) handleGetDocumentNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.ingest.GetDocumentNodes(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document nodes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// Object endpoints

func (s *Server) handlePresignObject(w http.ResponseWriter, r *http.Request) {
	var req PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	expiry := time.Duration(req.ExpirySeconds) * time.Second
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	exists, err := s.objects.Exists(r.Context(), req.Key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check object")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}

	url, err := s.objects.PresignGet(r.Context(), req.Key, expiry)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to presign object")
		return
	}

	writeJSON(w, http.StatusOK, PresignResponse{URL: url})
}

// handleGetObject serves a stored object through its presigned URL. The
// signature query parameters are the only authentication.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expires parameter")
		return
	}
	signature := r.URL.Query().Get("signature")

	if err := s.objects.VerifySignature(key, expires, signature); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	data, err := s.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read object")
		return
	}

	contentType, _ := s.objects.ContentType(key)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Admin endpoints

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get queue stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

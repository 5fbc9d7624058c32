package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/codex-ingest/internal/adapters/driven/objectstore"
	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven/mocks"
)

const testSecret = "test-secret"

// stubIngest implements driving.IngestService with overridable funcs
type stubIngest struct {
	confirmUpload func(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error)
	processBatch  func(ctx context.Context, runID string) (*domain.BatchResult, error)
	retry         func(ctx context.Context, runID string) (*domain.IngestRun, error)
	getRun        func(ctx context.Context, runID string) (*domain.IngestRun, error)
	listRuns      func(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error)
	listProgress  func(ctx context.Context, runID string) ([]*domain.ParseProgress, error)
	getDocument   func(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error)
	getNodes      func(ctx context.Context, documentID string) ([]*domain.Node, error)
}

func (s *stubIngest) ConfirmUpload(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
	return s.confirmUpload(ctx, editionID, volumeTag, archiveKey, archiveSize)
}

func (s *stubIngest) ProcessBatch(ctx context.Context, runID string) (*domain.BatchResult, error) {
	return s.processBatch(ctx, runID)
}

func (s *stubIngest) RunToCompletion(ctx context.Context, runID string) error {
	return nil
}

func (s *stubIngest) Retry(ctx context.Context, runID string) (*domain.IngestRun, error) {
	return s.retry(ctx, runID)
}

func (s *stubIngest) GetRun(ctx context.Context, runID string) (*domain.IngestRun, error) {
	return s.getRun(ctx, runID)
}

func (s *stubIngest) ListRuns(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
	return s.listRuns(ctx, editionID, limit, offset)
}

func (s *stubIngest) ListProgress(ctx context.Context, runID string) ([]*domain.ParseProgress, error) {
	return s.listProgress(ctx, runID)
}

func (s *stubIngest) GetDocument(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error) {
	return s.getDocument(ctx, documentID)
}

func (s *stubIngest) GetDocumentNodes(ctx context.Context, documentID string) ([]*domain.Node, error) {
	return s.getNodes(ctx, documentID)
}

func setupTestServer(t *testing.T, ingest *stubIngest) (*Server, *objectstore.FSStore) {
	t.Helper()

	store, err := objectstore.NewFSStore(objectstore.FSStoreConfig{
		Root:       t.TempDir(),
		BaseURL:    "http://localhost:8080",
		SigningKey: "object-signing-key",
	})
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.AuthSecret = testSecret

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	srv := NewServer(cfg, ingest, store, mocks.NewMockTaskQueue(), nil, nil, logger)
	return srv, store
}

func testToken(t *testing.T) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss": "test",
		"sub": "test-caller",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t, &stubIngest{})

	rec := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := setupTestServer(t, &stubIngest{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-1", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-1", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestConfirmUpload(t *testing.T) {
	ingest := &stubIngest{
		confirmUpload: func(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
			if editionID != "bca-2025" || volumeTag != "vol-one" {
				t.Errorf("unexpected args: %s %s", editionID, volumeTag)
			}
			return &domain.IngestRun{
				ID:        "run-1",
				EditionID: editionID,
				VolumeTag: volumeTag,
				Status:    domain.RunStatusQueued,
			}, nil
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", testToken(t), ConfirmUploadRequest{
		EditionID:   "bca-2025",
		VolumeTag:   "vol-one",
		ArchiveKey:  "uploads/bca-2025/vol-one.zip",
		ArchiveSize: 1024,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var run domain.IngestRun
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("expected run-1, got %s", run.ID)
	}
}

func TestConfirmUploadSlotConflict(t *testing.T) {
	ingest := &stubIngest{
		confirmUpload: func(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
			return nil, domain.ErrRunInProgress
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", testToken(t), ConfirmUploadRequest{
		EditionID: "bca-2025",
		VolumeTag: "vol-one",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestConfirmUploadInvalidInput(t *testing.T) {
	ingest := &stubIngest{
		confirmUpload: func(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
			return nil, domain.ErrInvalidInput
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs", testToken(t), ConfirmUploadRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	ingest := &stubIngest{
		getRun: func(ctx context.Context, runID string) (*domain.IngestRun, error) {
			return nil, domain.ErrNotFound
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/missing", testToken(t), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestProcessBatch(t *testing.T) {
	ingest := &stubIngest{
		processBatch: func(ctx context.Context, runID string) (*domain.BatchResult, error) {
			return &domain.BatchResult{
				RunID:     runID,
				Processed: 25,
				Remaining: 10,
				Reason:    domain.StopBatchLimit,
			}, nil
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/run-1/process", testToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.BatchResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Reason != domain.StopBatchLimit {
		t.Errorf("expected batch_limit stop reason, got %s", result.Reason)
	}
	if result.Remaining != 10 {
		t.Errorf("expected 10 remaining, got %d", result.Remaining)
	}
}

func TestProcessBatchTerminalRun(t *testing.T) {
	ingest := &stubIngest{
		processBatch: func(ctx context.Context, runID string) (*domain.BatchResult, error) {
			return nil, domain.ErrRunTerminal
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/run-1/process", testToken(t), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestRetryRunInProgress(t *testing.T) {
	ingest := &stubIngest{
		retry: func(ctx context.Context, runID string) (*domain.IngestRun, error) {
			return nil, domain.ErrRunInProgress
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/run-1/retry", testToken(t), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestListEditionRuns(t *testing.T) {
	ingest := &stubIngest{
		listRuns: func(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
			if editionID != "bca-2025" {
				t.Errorf("unexpected edition: %s", editionID)
			}
			if limit != 5 || offset != 10 {
				t.Errorf("unexpected pagination: limit=%d offset=%d", limit, offset)
			}
			return []*domain.IngestRun{{ID: "run-1"}, {ID: "run-2"}}, nil
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/editions/bca-2025/runs?limit=5&offset=10", testToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Runs []*domain.IngestRun `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(resp.Runs))
	}
}

func TestGetDocument(t *testing.T) {
	ingest := &stubIngest{
		getDocument: func(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error) {
			return &domain.Document{ID: documentID, Title: "Fire Safety"},
				[]*domain.Block{{ID: "blk-1", DocumentID: documentID}}, nil
		},
	}
	srv, _ := setupTestServer(t, ingest)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/documents/doc-1", testToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp DocumentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Document.Title != "Fire Safety" {
		t.Errorf("unexpected title: %s", resp.Document.Title)
	}
	if len(resp.Blocks) != 1 {
		t.Errorf("expected 1 block, got %d", len(resp.Blocks))
	}
}

func TestPresignAndFetchObject(t *testing.T) {
	srv, store := setupTestServer(t, &stubIngest{})
	ctx := context.Background()

	if err := store.Put(ctx, "assets/run-1/figure-one.png", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/objects/presign", testToken(t), PresignRequest{
		Key: "assets/run-1/figure-one.png",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var presign PresignResponse
	if err := json.NewDecoder(rec.Body).Decode(&presign); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// The presigned URL is served by this same server, unauthenticated.
	u, err := url.Parse(presign.URL)
	if err != nil {
		t.Fatalf("invalid presigned URL: %v", err)
	}
	rec = doRequest(t, srv, http.MethodGet, u.Path+"?"+u.RawQuery, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching presigned object, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "png-bytes" {
		t.Errorf("unexpected object bytes: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}

	// A tampered signature must be rejected
	rec = doRequest(t, srv, http.MethodGet, u.Path+"?expires=9999999999&signature=deadbeef", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for tampered signature, got %d", rec.Code)
	}
}

func TestPresignMissingObject(t *testing.T) {
	srv, _ := setupTestServer(t, &stubIngest{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/objects/presign", testToken(t), PresignRequest{
		Key: "assets/run-1/missing.png",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestQueueStats(t *testing.T) {
	srv, _ := setupTestServer(t, &stubIngest{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/admin/queue", testToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

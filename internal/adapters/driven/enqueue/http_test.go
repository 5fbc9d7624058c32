package enqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven/mocks"
)

func TestQueueEnqueuer(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	enq := NewQueueEnqueuer(queue)
	ctx := context.Background()

	if err := enq.EnqueueRun(ctx, "bca-2025", "run-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	task, err := queue.Dequeue(ctx)
	if err != nil || task == nil {
		t.Fatalf("dequeue failed: task=%v err=%v", task, err)
	}
	if task.Type != domain.TaskTypeIngestRun {
		t.Errorf("expected ingest run task, got %s", task.Type)
	}
	if task.EditionID != "bca-2025" {
		t.Errorf("expected edition bca-2025, got %s", task.EditionID)
	}
	if task.RunID() != "run-1" {
		t.Errorf("expected run-1, got %q", task.RunID())
	}
}

func TestHTTPEnqueuer(t *testing.T) {
	const secret = "invoke-secret"

	var gotBody invokeRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	enq := NewHTTPEnqueuer(HTTPEnqueuerConfig{
		Endpoint: server.URL,
		Secret:   secret,
		Issuer:   "test-api",
	})

	if err := enq.EnqueueRun(context.Background(), "bca-2025", "run-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if gotBody.EditionID != "bca-2025" || gotBody.RunID != "run-1" {
		t.Errorf("unexpected body: %+v", gotBody)
	}

	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	token, err := jwt.Parse(strings.TrimPrefix(gotAuth, "Bearer "), func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("expected valid token: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if claims["iss"] != "test-api" {
		t.Errorf("expected issuer test-api, got %v", claims["iss"])
	}
	if claims["sub"] != "run-1" {
		t.Errorf("expected subject run-1, got %v", claims["sub"])
	}
}

func TestHTTPEnqueuerNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "worker fleet unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	enq := NewHTTPEnqueuer(HTTPEnqueuerConfig{Endpoint: server.URL, Secret: "s"})

	err := enq.EnqueueRun(context.Background(), "bca-2025", "run-1")
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("expected status in error, got %v", err)
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven/mocks"
)

// stubIngest implements driving.IngestService; only RunToCompletion matters
// to the worker.
type stubIngest struct {
	mu        sync.Mutex
	completed []string
	err       error
}

func (s *stubIngest) RunToCompletion(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.completed = append(s.completed, runID)
	return nil
}

func (s *stubIngest) completedRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.completed))
	copy(out, s.completed)
	return out
}

func (s *stubIngest) ConfirmUpload(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error) {
	return nil, nil
}
func (s *stubIngest) ProcessBatch(ctx context.Context, runID string) (*domain.BatchResult, error) {
	return nil, nil
}
func (s *stubIngest) Retry(ctx context.Context, runID string) (*domain.IngestRun, error) {
	return nil, nil
}
func (s *stubIngest) GetRun(ctx context.Context, runID string) (*domain.IngestRun, error) {
	return nil, nil
}
func (s *stubIngest) ListRuns(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
	return nil, nil
}
func (s *stubIngest) ListProgress(ctx context.Context, runID string) ([]*domain.ParseProgress, error) {
	return nil, nil
}
func (s *stubIngest) GetDocument(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error) {
	return nil, nil, nil
}
func (s *stubIngest) GetDocumentNodes(ctx context.Context, documentID string) ([]*domain.Node, error) {
	return nil, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestWorkerProcessesIngestTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingest := &stubIngest{}
	w := New(Config{TaskQueue: queue, Ingest: ingest, DequeueTimeout: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := domain.NewIngestRunTask("bca-2025", "run-1")
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	ok := waitFor(t, 3*time.Second, func() bool {
		stored, err := queue.GetTask(ctx, task.ID)
		return err == nil && stored.Status == domain.TaskStatusCompleted
	})
	if !ok {
		t.Fatal("task never acked")
	}
	if got := ingest.completedRuns(); len(got) != 1 || got[0] != "run-1" {
		t.Errorf("completed runs = %v, want [run-1]", got)
	}
}

func TestWorkerNacksFailedTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingest := &stubIngest{err: errors.New("archive corrupt")}
	w := New(Config{TaskQueue: queue, Ingest: ingest, DequeueTimeout: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := domain.NewIngestRunTask("bca-2025", "run-2")
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	ok := waitFor(t, 3*time.Second, func() bool {
		stored, err := queue.GetTask(ctx, task.ID)
		return err == nil && stored.Error != "" && stored.Status != domain.TaskStatusCompleted
	})
	if !ok {
		t.Fatal("task never nacked for retry")
	}
}

// A redelivered task for a run that already finished must ack, not loop.
func TestWorkerAcksTerminalRun(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingest := &stubIngest{err: fmt.Errorf("%w: run run-3 is done", domain.ErrRunTerminal)}
	w := New(Config{TaskQueue: queue, Ingest: ingest, DequeueTimeout: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task := domain.NewIngestRunTask("bca-2025", "run-3")
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	ok := waitFor(t, 3*time.Second, func() bool {
		stored, err := queue.GetTask(ctx, task.ID)
		return err == nil && stored.Status == domain.TaskStatusCompleted
	})
	if !ok {
		t.Fatal("terminal-run task never acked")
	}
}

func TestWorkerHealth(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	w := New(Config{TaskQueue: queue, Ingest: &stubIngest{}, DequeueTimeout: 1})

	health := w.Health(context.Background())
	if health.Running {
		t.Error("worker reported running before start")
	}
	if !health.QueueHealth {
		t.Error("queue should be healthy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if !w.Health(ctx).Running {
		t.Error("worker should report running after start")
	}
}

func TestJanitorRequeuesStaleRuns(t *testing.T) {
	runs := mocks.NewMockRunStore()
	enqueuer := mocks.NewMockEnqueuer()
	ctx := context.Background()

	stale := domain.NewIngestRun("bca-2025", "vol-one", "key", 10)
	stale.Status = domain.RunStatusPartial
	stale.UpdatedAt = time.Now().Add(-time.Hour)
	if err := runs.Save(ctx, stale); err != nil {
		t.Fatalf("save stale run: %v", err)
	}

	fresh := domain.NewIngestRun("bca-2025", "vol-two", "key", 10)
	if err := runs.Save(ctx, fresh); err != nil {
		t.Fatalf("save fresh run: %v", err)
	}

	terminal := domain.NewIngestRun("bca-2025", "vol-three", "key", 10)
	terminal.MarkFailed("boom")
	terminal.UpdatedAt = time.Now().Add(-time.Hour)
	if err := runs.Save(ctx, terminal); err != nil {
		t.Fatalf("save terminal run: %v", err)
	}

	j := NewJanitor(JanitorConfig{
		Runs:       runs,
		TaskQueue:  mocks.NewMockTaskQueue(),
		Enqueuer:   enqueuer,
		Lock:       mocks.NewMockDistributedLock(),
		StaleAfter: 10 * time.Minute,
	})
	j.sweep(ctx)

	if got := enqueuer.Enqueued(); len(got) != 1 || got[0] != stale.ID {
		t.Errorf("re-enqueued = %v, want only the stale in-flight run %s", got, stale.ID)
	}
}

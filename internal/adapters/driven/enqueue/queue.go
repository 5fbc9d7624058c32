package enqueue

import (
	"context"
	"fmt"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Enqueuer = (*QueueEnqueuer)(nil)

// QueueEnqueuer pushes ingestion tasks straight onto the shared TaskQueue.
// This is the default wiring when the API and workers share a backend.
type QueueEnqueuer struct {
	queue driven.TaskQueue
}

// NewQueueEnqueuer creates an enqueuer backed by the task queue
func NewQueueEnqueuer(queue driven.TaskQueue) *QueueEnqueuer {
	return &QueueEnqueuer{queue: queue}
}

// EnqueueRun queues an ingest-run task for the given run
func (e *QueueEnqueuer) EnqueueRun(ctx context.Context, editionID, runID string) error {
	task := domain.NewIngestRunTask(editionID, runID)
	if err := e.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("enqueue run %s: %w", runID, err)
	}
	return nil
}

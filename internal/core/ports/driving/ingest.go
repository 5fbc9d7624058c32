package driving

import (
	"context"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// IngestService is the driving port for the ingestion pipeline: run
// creation, the two execution shapes, and the read-only progress surface
// consumed by the admin UI.
type IngestService interface {
	// ConfirmUpload records a confirmed archive upload transactionally and
	// creates + enqueues the run for the (edition, volume) pair. Fails with
	// domain.ErrRunInProgress if a run already owns the slot. An enqueue
	// failure marks the run failed with the underlying error text.
	ConfirmUpload(ctx context.Context, editionID, volumeTag, archiveKey string, archiveSize int64) (*domain.IngestRun, error)

	// ProcessBatch runs one time-boxed, bounded batch for the run and
	// reports an explicit continue-or-stop outcome. This is the chunked
	// invocation shape: callers re-invoke until BatchResult.Done().
	ProcessBatch(ctx context.Context, runID string) (*domain.BatchResult, error)

	// RunToCompletion drains a run in one pass (queue-worker shape),
	// restarting idempotently if the run is not resuming from partial.
	RunToCompletion(ctx context.Context, runID string) error

	// Retry re-enqueues a failed or stuck run. Safe: restarts are idempotent.
	Retry(ctx context.Context, runID string) (*domain.IngestRun, error)

	// GetRun retrieves run status and aggregate counts
	GetRun(ctx context.Context, runID string) (*domain.IngestRun, error)

	// ListRuns retrieves runs for an edition, newest first
	ListRuns(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error)

	// ListProgress retrieves the per-file ledger for a run
	ListProgress(ctx context.Context, runID string) ([]*domain.ParseProgress, error)

	// GetDocument retrieves one extracted document with its ordered blocks
	GetDocument(ctx context.Context, documentID string) (*domain.Document, []*domain.Block, error)

	// GetDocumentNodes retrieves a document's hierarchy nodes in sort order
	GetDocumentNodes(ctx context.Context, documentID string) ([]*domain.Node, error)
}

package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// RunStore handles ingestion run persistence (PostgreSQL)
type RunStore interface {
	// Save creates or updates a run
	Save(ctx context.Context, run *domain.IngestRun) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*domain.IngestRun, error)

	// GetInFlight retrieves the single queued/running/partial run for an
	// (edition, volume) pair, or domain.ErrNotFound
	GetInFlight(ctx context.Context, editionID, volumeTag string) (*domain.IngestRun, error)

	// ListByEdition retrieves runs for an edition, newest first
	ListByEdition(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error)

	// ListStale retrieves in-flight runs whose last update is older than the
	// given age; candidates for janitor re-enqueue
	ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.IngestRun, error)

	// UpdateEditionStatus propagates the owning edition's lifecycle forward
	// (e.g. "uploaded" -> "parsed") once a run finalizes
	UpdateEditionStatus(ctx context.Context, editionID, status string) error
}

// ProgressStore handles the per-file resumability ledger (PostgreSQL)
type ProgressStore interface {
	// Seed inserts pending rows for every discovered file. It is a no-op if
	// rows already exist for the run: the file set is fixed after the first
	// batch of a job.
	Seed(ctx context.Context, runID string, filePaths []string) error

	// Get retrieves one ledger row
	Get(ctx context.Context, runID, filePath string) (*domain.ParseProgress, error)

	// ListPending retrieves up to limit pending files in stable path order
	ListPending(ctx context.Context, runID string, limit int) ([]*domain.ParseProgress, error)

	// List retrieves the full ledger for a run in stable path order
	List(ctx context.Context, runID string) ([]*domain.ParseProgress, error)

	// MarkProcessing transitions one file to processing
	MarkProcessing(ctx context.Context, runID, filePath string) error

	// MarkCompleted transitions one file to completed with its node count
	MarkCompleted(ctx context.Context, runID, filePath string, nodesCreated int) error

	// MarkError transitions one file to error with the message
	MarkError(ctx context.Context, runID, filePath string, message string) error

	// Counts returns (total, completed, errored) for a run
	Counts(ctx context.Context, runID string) (total, completed, errored int, err error)

	// DeleteByRun removes the ledger for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

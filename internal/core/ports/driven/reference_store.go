package driven

import (
	"context"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// ReferenceStore handles directed document-to-document edges (PostgreSQL)
type ReferenceStore interface {
	// SaveBatch inserts references in a transaction. Unresolved references
	// (empty target document ID) are stored, never dropped.
	SaveBatch(ctx context.Context, refs []*domain.Reference) error

	// ListBySource retrieves references originating from a document
	ListBySource(ctx context.Context, sourceDocumentID string) ([]*domain.Reference, error)

	// ListByRun retrieves all references for a run
	ListByRun(ctx context.Context, runID string) ([]*domain.Reference, error)

	// CountByRun returns reference count for a run
	CountByRun(ctx context.Context, runID string) (int, error)

	// ResolveTargets fills target document IDs for every reference whose
	// basename matches a document ingested in the same run. Resolution is
	// order-independent, so chunked and single-pass runs converge on the
	// same edges. Returns how many references were resolved.
	ResolveTargets(ctx context.Context, runID string) (int, error)

	// DeleteByRun removes all references for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

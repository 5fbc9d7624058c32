package driven

import (
	"context"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// XMLObjectStore handles classified archive entries (PostgreSQL)
type XMLObjectStore interface {
	// SaveBatch inserts classified entries in a transaction
	SaveBatch(ctx context.Context, objects []*domain.XMLObject) error

	// GetByBasename retrieves one entry by run and basename
	GetByBasename(ctx context.Context, runID, basename string) (*domain.XMLObject, error)

	// ListByRun retrieves all entries for a run
	ListByRun(ctx context.Context, runID string) ([]*domain.XMLObject, error)

	// CountByRun returns how many entries a run has classified
	CountByRun(ctx context.Context, runID string) (int, error)

	// DeleteByRun removes all entries for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetByBasename retrieves the document extracted from a source basename
	// within one run
	GetByBasename(ctx context.Context, runID, basename string) (*domain.Document, error)

	// ListByRun retrieves all documents for a run
	ListByRun(ctx context.Context, runID string) ([]*domain.Document, error)

	// CountByRun returns document count for a run
	CountByRun(ctx context.Context, runID string) (int, error)

	// Delete removes a single document
	Delete(ctx context.Context, id string) error

	// DeleteByRun removes all documents for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

// BlockStore handles ordered content blocks (PostgreSQL)
type BlockStore interface {
	// SaveBatch inserts a document's blocks in a transaction
	SaveBatch(ctx context.Context, blocks []*domain.Block) error

	// ListByDocument retrieves blocks in ordinal order
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Block, error)

	// PatchAsset records the resolved asset on an image placeholder block
	PatchAsset(ctx context.Context, blockID, assetID, assetKey string) error

	// CountByRun returns block count across a run's documents
	CountByRun(ctx context.Context, runID string) (int, error)

	// DeleteByDocument removes one document's blocks
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteByRun removes all blocks for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

// NodeStore handles the hierarchical clause tree (PostgreSQL)
type NodeStore interface {
	// SaveBatch inserts nodes in a transaction
	SaveBatch(ctx context.Context, nodes []*domain.Node) error

	// ListByDocument retrieves a document's nodes in sort order
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Node, error)

	// ListByRun retrieves all nodes for a run in sort order
	ListByRun(ctx context.Context, runID string) ([]*domain.Node, error)

	// CountByRun returns node count for a run
	CountByRun(ctx context.Context, runID string) (int, error)

	// MaxSortOrder returns the highest sort order persisted for a run,
	// or 0 when the run has no nodes
	MaxSortOrder(ctx context.Context, runID string) (int, error)

	// DeleteByDocument removes one document's nodes
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteByRun removes all nodes for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

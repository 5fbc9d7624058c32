package driven

import (
	"context"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// AssetStore handles uploaded binary records (PostgreSQL)
type AssetStore interface {
	// Save creates or updates an asset row, keyed by (run, filename)
	Save(ctx context.Context, asset *domain.Asset) error

	// GetByFilename retrieves an asset by run and original filename
	GetByFilename(ctx context.Context, runID, filename string) (*domain.Asset, error)

	// ListByRun retrieves all assets for a run
	ListByRun(ctx context.Context, runID string) ([]*domain.Asset, error)

	// CountByRun returns asset count for a run
	CountByRun(ctx context.Context, runID string) (int, error)

	// SavePlacement records where an asset appears
	SavePlacement(ctx context.Context, placement *domain.AssetPlacement) error

	// ListPlacements retrieves placements for a document
	ListPlacements(ctx context.Context, documentID string) ([]*domain.AssetPlacement, error)

	// DeleteByRun removes assets and placements for a run (idempotent restart)
	DeleteByRun(ctx context.Context, runID string) error
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AssetStore = (*AssetStore)(nil)

// AssetStore implements driven.AssetStore using PostgreSQL
type AssetStore struct {
	db *DB
}

// NewAssetStore creates a new AssetStore
func NewAssetStore(db *DB) *AssetStore {
	return &AssetStore{db: db}
}

// Save creates or updates an asset row, keyed by (run, filename)
func (s *AssetStore) Save(ctx context.Context, asset *domain.Asset) error {
	query := `
		INSERT INTO assets (id, run_id, filename, key, content_type, width, height, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, filename) DO UPDATE SET
			id = EXCLUDED.id,
			key = EXCLUDED.key,
			content_type = EXCLUDED.content_type,
			width = EXCLUDED.width,
			height = EXCLUDED.height
	`

	_, err := s.db.ExecContext(ctx, query,
		asset.ID,
		asset.RunID,
		asset.Filename,
		asset.Key,
		asset.ContentType,
		asset.Width,
		asset.Height,
		asset.CreatedAt,
	)
	return err
}

const assetColumns = `id, run_id, filename, key, content_type, width, height, created_at`

// GetByFilename retrieves an asset by run and original filename
func (s *AssetStore) GetByFilename(ctx context.Context, runID, filename string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE run_id = $1 AND filename = $2`
	return s.scanAsset(s.db.QueryRowContext(ctx, query, runID, filename))
}

// ListByRun retrieves all assets for a run
func (s *AssetStore) ListByRun(ctx context.Context, runID string) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE run_id = $1 ORDER BY filename`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		asset, err := s.scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assets, nil
}

// CountByRun returns asset count for a run
func (s *AssetStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// SavePlacement records where an asset appears
func (s *AssetStore) SavePlacement(ctx context.Context, placement *domain.AssetPlacement) error {
	query := `
		INSERT INTO asset_placements (id, run_id, asset_id, document_id, block_id, caption, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			caption = EXCLUDED.caption
	`

	_, err := s.db.ExecContext(ctx, query,
		placement.ID,
		placement.RunID,
		placement.AssetID,
		placement.DocumentID,
		placement.BlockID,
		placement.Caption,
		placement.CreatedAt,
	)
	return err
}

// ListPlacements retrieves placements for a document
func (s *AssetStore) ListPlacements(ctx context.Context, documentID string) ([]*domain.AssetPlacement, error) {
	query := `
		SELECT id, run_id, asset_id, document_id, block_id, caption, created_at
		FROM asset_placements
		WHERE document_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var placements []*domain.AssetPlacement
	for rows.Next() {
		var p domain.AssetPlacement
		err := rows.Scan(&p.ID, &p.RunID, &p.AssetID, &p.DocumentID, &p.BlockID, &p.Caption, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		placements = append(placements, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return placements, nil
}

// DeleteByRun removes assets and placements for a run. Placements cascade
// from assets, but runs can also be deleted wholesale, so both are explicit.
func (s *AssetStore) DeleteByRun(ctx context.Context, runID string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_placements WHERE run_id = $1`, runID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE run_id = $1`, runID)
		return err
	})
}

func (s *AssetStore) scanAsset(row rowScanner) (*domain.Asset, error) {
	var asset domain.Asset
	err := row.Scan(
		&asset.ID,
		&asset.RunID,
		&asset.Filename,
		&asset.Key,
		&asset.ContentType,
		&asset.Width,
		&asset.Height,
		&asset.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BlockStore = (*BlockStore)(nil)

// BlockStore implements driven.BlockStore using PostgreSQL
type BlockStore struct {
	db *DB
}

// NewBlockStore creates a new BlockStore
func NewBlockStore(db *DB) *BlockStore {
	return &BlockStore{db: db}
}

// SaveBatch inserts a document's blocks in one transaction
func (s *BlockStore) SaveBatch(ctx context.Context, blocks []*domain.Block) error {
	if len(blocks) == 0 {
		return nil
	}

	query := `
		INSERT INTO blocks (id, run_id, document_id, ordinal, block_type, text,
		                    items, table_header, table_rows, image_ref, asset_id, asset_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (document_id, ordinal) DO UPDATE SET
			id = EXCLUDED.id,
			block_type = EXCLUDED.block_type,
			text = EXCLUDED.text,
			items = EXCLUDED.items,
			table_header = EXCLUDED.table_header,
			table_rows = EXCLUDED.table_rows,
			image_ref = EXCLUDED.image_ref,
			asset_id = EXCLUDED.asset_id,
			asset_key = EXCLUDED.asset_key
	`

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range blocks {
			items, header, rows, err := marshalBlockPayloads(b)
			if err != nil {
				return err
			}

			_, err = stmt.ExecContext(ctx,
				b.ID,
				b.RunID,
				b.DocumentID,
				b.Ordinal,
				string(b.Type),
				b.Text,
				items,
				header,
				rows,
				b.ImageRef,
				b.AssetID,
				b.AssetKey,
				b.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByDocument retrieves blocks in ordinal order
func (s *BlockStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.Block, error) {
	query := `
		SELECT id, run_id, document_id, ordinal, block_type, text,
		       items, table_header, table_rows, image_ref, asset_id, asset_key, created_at
		FROM blocks
		WHERE document_id = $1
		ORDER BY ordinal
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*domain.Block
	for rows.Next() {
		var b domain.Block
		var items, header, tableRows []byte

		err := rows.Scan(
			&b.ID,
			&b.RunID,
			&b.DocumentID,
			&b.Ordinal,
			&b.Type,
			&b.Text,
			&items,
			&header,
			&tableRows,
			&b.ImageRef,
			&b.AssetID,
			&b.AssetKey,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if err := unmarshalBlockPayloads(&b, items, header, tableRows); err != nil {
			return nil, err
		}
		blocks = append(blocks, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blocks, nil
}

// PatchAsset records the resolved asset on an image placeholder block
func (s *BlockStore) PatchAsset(ctx context.Context, blockID, assetID, assetKey string) error {
	query := `UPDATE blocks SET asset_id = $1, asset_key = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, assetID, assetKey, blockID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByRun returns block count across a run's documents
func (s *BlockStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// DeleteByDocument removes one document's blocks
func (s *BlockStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE document_id = $1`, documentID)
	return err
}

// DeleteByRun removes all blocks for a run
func (s *BlockStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE run_id = $1`, runID)
	return err
}

func marshalBlockPayloads(b *domain.Block) (items, header, rows []byte, err error) {
	if b.Items != nil {
		if items, err = json.Marshal(b.Items); err != nil {
			return nil, nil, nil, err
		}
	}
	if b.TableHeader != nil {
		if header, err = json.Marshal(b.TableHeader); err != nil {
			return nil, nil, nil, err
		}
	}
	if b.TableRows != nil {
		if rows, err = json.Marshal(b.TableRows); err != nil {
			return nil, nil, nil, err
		}
	}
	return items, header, rows, nil
}

func unmarshalBlockPayloads(b *domain.Block, items, header, rows []byte) error {
	if len(items) > 0 {
		if err := json.Unmarshal(items, &b.Items); err != nil {
			return err
		}
	}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &b.TableHeader); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		if err := json.Unmarshal(rows, &b.TableRows); err != nil {
			return err
		}
	}
	return nil
}

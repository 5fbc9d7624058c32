package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NodeStore = (*NodeStore)(nil)

// NodeStore implements driven.NodeStore using PostgreSQL
type NodeStore struct {
	db *DB
}

// NewNodeStore creates a new NodeStore
func NewNodeStore(db *DB) *NodeStore {
	return &NodeStore{db: db}
}

// SaveBatch inserts nodes in one transaction
func (s *NodeStore) SaveBatch(ctx context.Context, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	query := `
		INSERT INTO nodes (id, run_id, document_id, node_type, reference, title, text,
		                   parent_id, sort_order, path, depth, content_hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, n := range nodes {
			var metadata []byte
			if n.Metadata != nil {
				if metadata, err = json.Marshal(n.Metadata); err != nil {
					return err
				}
			}

			_, err = stmt.ExecContext(ctx,
				n.ID,
				n.RunID,
				n.DocumentID,
				string(n.Type),
				n.Reference,
				n.Title,
				n.Text,
				n.ParentID,
				n.SortOrder,
				n.Path,
				n.Depth,
				n.ContentHash,
				metadata,
				n.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const nodeColumns = `id, run_id, document_id, node_type, reference, title, text,
       parent_id, sort_order, path, depth, content_hash, metadata, created_at`

// ListByDocument retrieves a document's nodes in sort order
func (s *NodeStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE document_id = $1 ORDER BY sort_order`
	return s.queryNodes(ctx, query, documentID)
}

// ListByRun retrieves all nodes for a run in sort order
func (s *NodeStore) ListByRun(ctx context.Context, runID string) ([]*domain.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE run_id = $1 ORDER BY sort_order`
	return s.queryNodes(ctx, query, runID)
}

// CountByRun returns node count for a run
func (s *NodeStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// MaxSortOrder returns the highest sort order persisted for a run, or 0
// when the run has no nodes
func (s *NodeStore) MaxSortOrder(ctx context.Context, runID string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM nodes WHERE run_id = $1`, runID).Scan(&max)
	return max, err
}

// DeleteByDocument removes one document's nodes
func (s *NodeStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE document_id = $1`, documentID)
	return err
}

// DeleteByRun removes all nodes for a run
func (s *NodeStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE run_id = $1`, runID)
	return err
}

func (s *NodeStore) queryNodes(ctx context.Context, query string, args ...interface{}) ([]*domain.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*domain.Node
	for rows.Next() {
		var n domain.Node
		var metadata []byte

		err := rows.Scan(
			&n.ID,
			&n.RunID,
			&n.DocumentID,
			&n.Type,
			&n.Reference,
			&n.Title,
			&n.Text,
			&n.ParentID,
			&n.SortOrder,
			&n.Path,
			&n.Depth,
			&n.ContentHash,
			&metadata,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return nodes, nil
}

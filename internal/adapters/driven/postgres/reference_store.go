package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ReferenceStore = (*ReferenceStore)(nil)

// ReferenceStore implements driven.ReferenceStore using PostgreSQL
type ReferenceStore struct {
	db *DB
}

// NewReferenceStore creates a new ReferenceStore
func NewReferenceStore(db *DB) *ReferenceStore {
	return &ReferenceStore{db: db}
}

// SaveBatch inserts references in one transaction. Unresolved references are
// stored with an empty target, never dropped.
func (s *ReferenceStore) SaveBatch(ctx context.Context, refs []*domain.Reference) error {
	if len(refs) == 0 {
		return nil
	}

	query := `
		INSERT INTO doc_references (id, run_id, source_document_id, block_id, kind,
		                            target_basename, target_document_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ref := range refs {
			_, err := stmt.ExecContext(ctx,
				ref.ID,
				ref.RunID,
				ref.SourceDocumentID,
				ref.BlockID,
				string(ref.Kind),
				ref.TargetBasename,
				ref.TargetDocumentID,
				ref.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const referenceColumns = `id, run_id, source_document_id, block_id, kind,
       target_basename, target_document_id, created_at`

// ListBySource retrieves references originating from a document
func (s *ReferenceStore) ListBySource(ctx context.Context, sourceDocumentID string) ([]*domain.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM doc_references WHERE source_document_id = $1 ORDER BY created_at`
	return s.queryReferences(ctx, query, sourceDocumentID)
}

// ListByRun retrieves all references for a run
func (s *ReferenceStore) ListByRun(ctx context.Context, runID string) ([]*domain.Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM doc_references WHERE run_id = $1 ORDER BY created_at`
	return s.queryReferences(ctx, query, runID)
}

// CountByRun returns reference count for a run
func (s *ReferenceStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_references WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// ResolveTargets joins unresolved references against same-run documents by
// basename. One UPDATE resolves everything resolvable, in any order, so
// chunked and single-pass runs converge on the same edges.
func (s *ReferenceStore) ResolveTargets(ctx context.Context, runID string) (int, error) {
	query := `
		UPDATE doc_references r
		SET target_document_id = d.id
		FROM documents d
		WHERE r.run_id = $1
		  AND r.target_document_id = ''
		  AND d.run_id = r.run_id
		  AND d.basename = r.target_basename
	`

	result, err := s.db.ExecContext(ctx, query, runID)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

// DeleteByRun removes all references for a run
func (s *ReferenceStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM doc_references WHERE run_id = $1`, runID)
	return err
}

func (s *ReferenceStore) queryReferences(ctx context.Context, query string, args ...interface{}) ([]*domain.Reference, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*domain.Reference
	for rows.Next() {
		var ref domain.Reference
		err := rows.Scan(
			&ref.ID,
			&ref.RunID,
			&ref.SourceDocumentID,
			&ref.BlockID,
			&ref.Kind,
			&ref.TargetBasename,
			&ref.TargetDocumentID,
			&ref.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		refs = append(refs, &ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}

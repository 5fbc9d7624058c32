package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save creates or updates a document. Reprocessing the same basename within
// a run replaces the previous extraction.
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, run_id, xml_object_id, basename, reference_code,
		                       title, archive_num, jurisdiction, doc_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, basename) DO UPDATE SET
			id = EXCLUDED.id,
			xml_object_id = EXCLUDED.xml_object_id,
			reference_code = EXCLUDED.reference_code,
			title = EXCLUDED.title,
			archive_num = EXCLUDED.archive_num,
			jurisdiction = EXCLUDED.jurisdiction,
			doc_type = EXCLUDED.doc_type,
			created_at = EXCLUDED.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.RunID,
		doc.XMLObjectID,
		doc.Basename,
		doc.ReferenceCode,
		doc.Title,
		doc.ArchiveNum,
		doc.Jurisdiction,
		string(doc.DocType),
		doc.CreatedAt,
	)
	return err
}

const documentColumns = `id, run_id, xml_object_id, basename, reference_code,
       title, archive_num, jurisdiction, doc_type, created_at`

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return s.scanDocument(s.db.QueryRowContext(ctx, query, id))
}

// GetByBasename retrieves the document extracted from a source basename
func (s *DocumentStore) GetByBasename(ctx context.Context, runID, basename string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE run_id = $1 AND basename = $2`
	return s.scanDocument(s.db.QueryRowContext(ctx, query, runID, basename))
}

// ListByRun retrieves all documents for a run
func (s *DocumentStore) ListByRun(ctx context.Context, runID string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE run_id = $1 ORDER BY basename`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := s.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

// CountByRun returns document count for a run
func (s *DocumentStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// Delete removes a single document
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// DeleteByRun removes all documents for a run
func (s *DocumentStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE run_id = $1`, runID)
	return err
}

func (s *DocumentStore) scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID,
		&doc.RunID,
		&doc.XMLObjectID,
		&doc.Basename,
		&doc.ReferenceCode,
		&doc.Title,
		&doc.ArchiveNum,
		&doc.Jurisdiction,
		&doc.DocType,
		&doc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

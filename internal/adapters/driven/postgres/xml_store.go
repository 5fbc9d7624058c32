package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.XMLObjectStore = (*XMLObjectStore)(nil)

// XMLObjectStore implements driven.XMLObjectStore using PostgreSQL
type XMLObjectStore struct {
	db *DB
}

// NewXMLObjectStore creates a new XMLObjectStore
func NewXMLObjectStore(db *DB) *XMLObjectStore {
	return &XMLObjectStore{db: db}
}

// SaveBatch inserts classified entries in one transaction. Re-classification
// of the same basename replaces the previous row in place.
func (s *XMLObjectStore) SaveBatch(ctx context.Context, objects []*domain.XMLObject) error {
	if len(objects) == 0 {
		return nil
	}

	query := `
		INSERT INTO xml_objects (id, run_id, basename, root_tag, outputclass, checksum, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, basename) DO UPDATE SET
			root_tag = EXCLUDED.root_tag,
			outputclass = EXCLUDED.outputclass,
			checksum = EXCLUDED.checksum,
			raw = EXCLUDED.raw
	`

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, obj := range objects {
			_, err := stmt.ExecContext(ctx,
				obj.ID,
				obj.RunID,
				obj.Basename,
				obj.RootTag,
				obj.OutputClass,
				obj.Checksum,
				obj.Raw,
				obj.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const xmlObjectColumns = `id, run_id, basename, root_tag, outputclass, checksum, raw, created_at`

// GetByBasename retrieves one entry by run and basename
func (s *XMLObjectStore) GetByBasename(ctx context.Context, runID, basename string) (*domain.XMLObject, error) {
	query := `SELECT ` + xmlObjectColumns + ` FROM xml_objects WHERE run_id = $1 AND basename = $2`

	var obj domain.XMLObject
	err := s.db.QueryRowContext(ctx, query, runID, basename).Scan(
		&obj.ID,
		&obj.RunID,
		&obj.Basename,
		&obj.RootTag,
		&obj.OutputClass,
		&obj.Checksum,
		&obj.Raw,
		&obj.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &obj, nil
}

// ListByRun retrieves all entries for a run
func (s *XMLObjectStore) ListByRun(ctx context.Context, runID string) ([]*domain.XMLObject, error) {
	query := `SELECT ` + xmlObjectColumns + ` FROM xml_objects WHERE run_id = $1 ORDER BY basename`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []*domain.XMLObject
	for rows.Next() {
		var obj domain.XMLObject
		err := rows.Scan(
			&obj.ID,
			&obj.RunID,
			&obj.Basename,
			&obj.RootTag,
			&obj.OutputClass,
			&obj.Checksum,
			&obj.Raw,
			&obj.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		objects = append(objects, &obj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return objects, nil
}

// CountByRun returns how many entries a run has classified
func (s *XMLObjectStore) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM xml_objects WHERE run_id = $1`, runID).Scan(&count)
	return count, err
}

// DeleteByRun removes all entries for a run
func (s *XMLObjectStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM xml_objects WHERE run_id = $1`, runID)
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
	"github.com/lib/pq"
)

// Verify interface compliance
var _ driven.ProgressStore = (*ProgressStore)(nil)

// ProgressStore implements driven.ProgressStore using PostgreSQL.
// It is the per-file resumability ledger for ingestion runs.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new ProgressStore
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Seed inserts pending rows for the given file paths. Existing rows keep
// their status, which is what makes restarts and resumes idempotent.
func (s *ProgressStore) Seed(ctx context.Context, runID string, filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}

	query := `
		INSERT INTO parse_progress (run_id, file_path, status)
		SELECT $1, unnest($2::text[]), 'pending'
		ON CONFLICT (run_id, file_path) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query, runID, pq.Array(filePaths))
	return err
}

// Get retrieves one ledger row
func (s *ProgressStore) Get(ctx context.Context, runID, filePath string) (*domain.ParseProgress, error) {
	query := `
		SELECT run_id, file_path, status, nodes_created, error, processed_at
		FROM parse_progress
		WHERE run_id = $1 AND file_path = $2
	`

	var p domain.ParseProgress
	var processedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, runID, filePath).Scan(
		&p.RunID,
		&p.FilePath,
		&p.Status,
		&p.NodesCreated,
		&p.Error,
		&processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ProcessedAt = TimePtr(processedAt)

	return &p, nil
}

// ListPending retrieves up to limit pending rows in stable path order.
// The ordering guarantee is what makes chunked runs deterministic.
func (s *ProgressStore) ListPending(ctx context.Context, runID string, limit int) ([]*domain.ParseProgress, error) {
	query := `
		SELECT run_id, file_path, status, nodes_created, error, processed_at
		FROM parse_progress
		WHERE run_id = $1 AND status = 'pending'
		ORDER BY file_path
		LIMIT $2
	`

	return s.queryProgress(ctx, query, runID, limit)
}

// List retrieves the full ledger for a run in path order
func (s *ProgressStore) List(ctx context.Context, runID string) ([]*domain.ParseProgress, error) {
	query := `
		SELECT run_id, file_path, status, nodes_created, error, processed_at
		FROM parse_progress
		WHERE run_id = $1
		ORDER BY file_path
	`

	return s.queryProgress(ctx, query, runID)
}

// MarkProcessing flags a row as picked up by a batch
func (s *ProgressStore) MarkProcessing(ctx context.Context, runID, filePath string) error {
	query := `
		UPDATE parse_progress
		SET status = 'processing', error = ''
		WHERE run_id = $1 AND file_path = $2
	`
	return s.exec(ctx, query, runID, filePath)
}

// MarkCompleted records a successfully processed file
func (s *ProgressStore) MarkCompleted(ctx context.Context, runID, filePath string, nodesCreated int) error {
	query := `
		UPDATE parse_progress
		SET status = 'completed', nodes_created = $3, error = '', processed_at = $4
		WHERE run_id = $1 AND file_path = $2
	`
	return s.exec(ctx, query, runID, filePath, nodesCreated, time.Now())
}

// MarkError records a per-file failure without failing the run
func (s *ProgressStore) MarkError(ctx context.Context, runID, filePath string, message string) error {
	query := `
		UPDATE parse_progress
		SET status = 'error', error = $3, processed_at = $4
		WHERE run_id = $1 AND file_path = $2
	`
	return s.exec(ctx, query, runID, filePath, message, time.Now())
}

// Counts returns ledger totals in a single round trip
func (s *ProgressStore) Counts(ctx context.Context, runID string) (total, completed, errored int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'error')
		FROM parse_progress
		WHERE run_id = $1
	`
	err = s.db.QueryRowContext(ctx, query, runID).Scan(&total, &completed, &errored)
	return total, completed, errored, err
}

// DeleteByRun removes the ledger for a run
func (s *ProgressStore) DeleteByRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM parse_progress WHERE run_id = $1`, runID)
	return err
}

func (s *ProgressStore) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
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

func (s *ProgressStore) queryProgress(ctx context.Context, query string, args ...interface{}) ([]*domain.ParseProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ParseProgress
	for rows.Next() {
		var p domain.ParseProgress
		var processedAt sql.NullTime

		err := rows.Scan(&p.RunID, &p.FilePath, &p.Status, &p.NodesCreated, &p.Error, &processedAt)
		if err != nil {
			return nil, err
		}
		p.ProcessedAt = TimePtr(processedAt)
		items = append(items, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

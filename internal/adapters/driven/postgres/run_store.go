package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RunStore = (*RunStore)(nil)

// RunStore implements driven.RunStore using PostgreSQL
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// Save creates or updates an ingestion run
func (s *RunStore) Save(ctx context.Context, run *domain.IngestRun) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ingest_runs (id, edition_id, volume_tag, archive_key, archive_size,
		                         status, error, stats, created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			stats = EXCLUDED.stats,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.EditionID,
		run.VolumeTag,
		run.ArchiveKey,
		run.ArchiveSize,
		string(run.Status),
		run.Error,
		statsJSON,
		run.CreatedAt,
		run.UpdatedAt,
		NullTime(run.StartedAt),
		NullTime(run.CompletedAt),
	)
	return err
}

const runColumns = `id, edition_id, volume_tag, archive_key, archive_size,
       status, error, stats, created_at, updated_at, started_at, completed_at`

// Get retrieves a run by ID
func (s *RunStore) Get(ctx context.Context, id string) (*domain.IngestRun, error) {
	query := `SELECT ` + runColumns + ` FROM ingest_runs WHERE id = $1`
	return s.scanRun(s.db.QueryRowContext(ctx, query, id))
}

// GetInFlight retrieves the run currently holding the (edition, volume) slot,
// if any. At most one exists thanks to the partial unique index.
func (s *RunStore) GetInFlight(ctx context.Context, editionID, volumeTag string) (*domain.IngestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ingest_runs
		WHERE edition_id = $1 AND volume_tag = $2
		  AND status IN ('queued', 'running', 'partial')
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query, editionID, volumeTag))
}

// ListByEdition retrieves runs for an edition, newest first
func (s *RunStore) ListByEdition(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ingest_runs
		WHERE edition_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, editionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// ListStale retrieves in-flight runs whose last update is older than the
// cutoff. These are janitor candidates for re-enqueueing.
func (s *RunStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.IngestRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ingest_runs
		WHERE status IN ('queued', 'running', 'partial')
		  AND updated_at < $1
		ORDER BY updated_at
	`

	rows, err := s.db.QueryContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRuns(rows)
}

// UpdateEditionStatus upserts the edition row with a new lifecycle status
func (s *RunStore) UpdateEditionStatus(ctx context.Context, editionID, status string) error {
	query := `
		INSERT INTO editions (id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, editionID, status)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *RunStore) scanRun(row rowScanner) (*domain.IngestRun, error) {
	var run domain.IngestRun
	var statsJSON []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.EditionID,
		&run.VolumeTag,
		&run.ArchiveKey,
		&run.ArchiveSize,
		&run.Status,
		&run.Error,
		&statsJSON,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return nil, err
		}
	}
	run.StartedAt = TimePtr(startedAt)
	run.CompletedAt = TimePtr(completedAt)

	return &run, nil
}

func (s *RunStore) scanRuns(rows *sql.Rows) ([]*domain.IngestRun, error) {
	var runs []*domain.IngestRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

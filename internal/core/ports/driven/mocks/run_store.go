package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// MockRunStore is a mock implementation of RunStore for testing
type MockRunStore struct {
	mu       sync.RWMutex
	runs     map[string]*domain.IngestRun
	editions map[string]string // editionID -> status

	// SaveErr, when set, is returned by Save to simulate storage failure
	SaveErr error
}

// NewMockRunStore creates a new MockRunStore
func NewMockRunStore() *MockRunStore {
	return &MockRunStore{
		runs:     make(map[string]*domain.IngestRun),
		editions: make(map[string]string),
	}
}

func (m *MockRunStore) Save(ctx context.Context, run *domain.IngestRun) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MockRunStore) Get(ctx context.Context, id string) (*domain.IngestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *MockRunStore) GetInFlight(ctx context.Context, editionID, volumeTag string) (*domain.IngestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range m.runs {
		if run.EditionID == editionID && run.VolumeTag == volumeTag && run.Status.InFlight() {
			cp := *run
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockRunStore) ListByEdition(ctx context.Context, editionID string, limit, offset int) ([]*domain.IngestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []*domain.IngestRun
	for _, run := range m.runs {
		if run.EditionID == editionID {
			cp := *run
			runs = append(runs, &cp)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MockRunStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*domain.IngestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-olderThan)
	var runs []*domain.IngestRun
	for _, run := range m.runs {
		if run.Status.InFlight() && run.UpdatedAt.Before(cutoff) {
			cp := *run
			runs = append(runs, &cp)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

func (m *MockRunStore) UpdateEditionStatus(ctx context.Context, editionID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editions[editionID] = status
	return nil
}

// EditionStatus inspects the recorded edition status (test helper)
func (m *MockRunStore) EditionStatus(editionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.editions[editionID]
}

// MockProgressStore is a mock implementation of ProgressStore for testing
type MockProgressStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]*domain.ParseProgress // runID -> path -> row
}

// NewMockProgressStore creates a new MockProgressStore
func NewMockProgressStore() *MockProgressStore {
	return &MockProgressStore{
		rows: make(map[string]map[string]*domain.ParseProgress),
	}
}

func (m *MockProgressStore) Seed(ctx context.Context, runID string, filePaths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows[runID]) > 0 {
		return nil // file set is fixed after the first batch
	}
	ledger := make(map[string]*domain.ParseProgress, len(filePaths))
	for _, path := range filePaths {
		ledger[path] = &domain.ParseProgress{
			RunID:    runID,
			FilePath: path,
			Status:   domain.FileStatusPending,
		}
	}
	m.rows[runID] = ledger
	return nil
}

func (m *MockProgressStore) Get(ctx context.Context, runID, filePath string) (*domain.ParseProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[runID][filePath]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *MockProgressStore) ListPending(ctx context.Context, runID string, limit int) ([]*domain.ParseProgress, error) {
	all, err := m.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	var pending []*domain.ParseProgress
	for _, row := range all {
		if row.Status == domain.FileStatusPending {
			pending = append(pending, row)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (m *MockProgressStore) List(ctx context.Context, runID string) ([]*domain.ParseProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var rows []*domain.ParseProgress
	for _, row := range m.rows[runID] {
		cp := *row
		rows = append(rows, &cp)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].FilePath < rows[j].FilePath })
	return rows, nil
}

func (m *MockProgressStore) MarkProcessing(ctx context.Context, runID, filePath string) error {
	return m.setStatus(runID, filePath, domain.FileStatusProcessing, 0, "")
}

func (m *MockProgressStore) MarkCompleted(ctx context.Context, runID, filePath string, nodesCreated int) error {
	return m.setStatus(runID, filePath, domain.FileStatusCompleted, nodesCreated, "")
}

func (m *MockProgressStore) MarkError(ctx context.Context, runID, filePath string, message string) error {
	return m.setStatus(runID, filePath, domain.FileStatusError, 0, message)
}

func (m *MockProgressStore) setStatus(runID, filePath string, status domain.FileStatus, nodes int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[runID][filePath]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = status
	row.NodesCreated = nodes
	row.Error = message
	if status == domain.FileStatusCompleted || status == domain.FileStatusError {
		now := nowFunc()
		row.ProcessedAt = &now
	}
	return nil
}

func (m *MockProgressStore) Counts(ctx context.Context, runID string) (total, completed, errored int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.rows[runID] {
		total++
		switch row.Status {
		case domain.FileStatusCompleted:
			completed++
		case domain.FileStatusError:
			errored++
		}
	}
	return total, completed, errored, nil
}

func (m *MockProgressStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, runID)
	return nil
}

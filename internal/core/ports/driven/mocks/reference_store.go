package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// MockReferenceStore is a mock implementation of ReferenceStore for testing.
// ResolveTargets needs the run's documents, so the mock is wired to a
// MockDocumentStore at construction time.
type MockReferenceStore struct {
	mu        sync.RWMutex
	refs      map[string]*domain.Reference
	documents *MockDocumentStore
}

// NewMockReferenceStore creates a new MockReferenceStore
func NewMockReferenceStore(documents *MockDocumentStore) *MockReferenceStore {
	return &MockReferenceStore{
		refs:      make(map[string]*domain.Reference),
		documents: documents,
	}
}

func (m *MockReferenceStore) SaveBatch(ctx context.Context, refs []*domain.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		cp := *ref
		m.refs[ref.ID] = &cp
	}
	return nil
}

func (m *MockReferenceStore) ListBySource(ctx context.Context, sourceDocumentID string) ([]*domain.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Reference
	for _, ref := range m.refs {
		if ref.SourceDocumentID == sourceDocumentID {
			cp := *ref
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockReferenceStore) ListByRun(ctx context.Context, runID string) ([]*domain.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Reference
	for _, ref := range m.refs {
		if ref.RunID == runID {
			cp := *ref
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockReferenceStore) CountByRun(ctx context.Context, runID string) (int, error) {
	refs, _ := m.ListByRun(ctx, runID)
	return len(refs), nil
}

func (m *MockReferenceStore) ResolveTargets(ctx context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved := 0
	for _, ref := range m.refs {
		if ref.RunID != runID || ref.TargetDocumentID != "" {
			continue
		}
		doc, err := m.documents.GetByBasename(ctx, runID, ref.TargetBasename)
		if err != nil {
			continue // retained unresolved
		}
		ref.TargetDocumentID = doc.ID
		resolved++
	}
	return resolved, nil
}

func (m *MockReferenceStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ref := range m.refs {
		if ref.RunID == runID {
			delete(m.refs, id)
		}
	}
	return nil
}

package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// MockAssetStore is a mock implementation of AssetStore for testing
type MockAssetStore struct {
	mu         sync.RWMutex
	assets     map[string]*domain.Asset // keyed by runID:filename
	placements map[string]*domain.AssetPlacement
}

// NewMockAssetStore creates a new MockAssetStore
func NewMockAssetStore() *MockAssetStore {
	return &MockAssetStore{
		assets:     make(map[string]*domain.Asset),
		placements: make(map[string]*domain.AssetPlacement),
	}
}

func assetKey(runID, filename string) string { return runID + ":" + filename }

func (m *MockAssetStore) Save(ctx context.Context, asset *domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *asset
	m.assets[assetKey(asset.RunID, asset.Filename)] = &cp
	return nil
}

func (m *MockAssetStore) GetByFilename(ctx context.Context, runID, filename string) (*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[assetKey(runID, filename)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

func (m *MockAssetStore) ListByRun(ctx context.Context, runID string) ([]*domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Asset
	for _, asset := range m.assets {
		if asset.RunID == runID {
			cp := *asset
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (m *MockAssetStore) CountByRun(ctx context.Context, runID string) (int, error) {
	assets, _ := m.ListByRun(ctx, runID)
	return len(assets), nil
}

func (m *MockAssetStore) SavePlacement(ctx context.Context, placement *domain.AssetPlacement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *placement
	m.placements[placement.ID] = &cp
	return nil
}

func (m *MockAssetStore) ListPlacements(ctx context.Context, documentID string) ([]*domain.AssetPlacement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.AssetPlacement
	for _, placement := range m.placements {
		if placement.DocumentID == documentID {
			cp := *placement
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockAssetStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, asset := range m.assets {
		if asset.RunID == runID {
			delete(m.assets, key)
		}
	}
	for id, placement := range m.placements {
		if placement.RunID == runID {
			delete(m.placements, id)
		}
	}
	return nil
}

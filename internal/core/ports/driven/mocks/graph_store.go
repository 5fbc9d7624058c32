package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

func nowFunc() time.Time { return time.Now() }

// MockXMLObjectStore is a mock implementation of XMLObjectStore for testing
type MockXMLObjectStore struct {
	mu      sync.RWMutex
	objects map[string]*domain.XMLObject // id -> object
}

// NewMockXMLObjectStore creates a new MockXMLObjectStore
func NewMockXMLObjectStore() *MockXMLObjectStore {
	return &MockXMLObjectStore{objects: make(map[string]*domain.XMLObject)}
}

func (m *MockXMLObjectStore) SaveBatch(ctx context.Context, objects []*domain.XMLObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objects {
		cp := *obj
		m.objects[obj.ID] = &cp
	}
	return nil
}

func (m *MockXMLObjectStore) GetByBasename(ctx context.Context, runID, basename string) (*domain.XMLObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, obj := range m.objects {
		if obj.RunID == runID && obj.Basename == basename {
			cp := *obj
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockXMLObjectStore) ListByRun(ctx context.Context, runID string) ([]*domain.XMLObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.XMLObject
	for _, obj := range m.objects {
		if obj.RunID == runID {
			cp := *obj
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Basename < out[j].Basename })
	return out, nil
}

func (m *MockXMLObjectStore) CountByRun(ctx context.Context, runID string) (int, error) {
	objs, _ := m.ListByRun(ctx, runID)
	return len(objs), nil
}

func (m *MockXMLObjectStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, obj := range m.objects {
		if obj.RunID == runID {
			delete(m.objects, id)
		}
	}
	return nil
}

// MockDocumentStore is a mock implementation of DocumentStore for testing
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{documents: make(map[string]*domain.Document)}
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockDocumentStore) GetByBasename(ctx context.Context, runID, basename string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.documents {
		if doc.RunID == runID && doc.Basename == basename {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentStore) ListByRun(ctx context.Context, runID string) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Document
	for _, doc := range m.documents {
		if doc.RunID == runID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Basename < out[j].Basename })
	return out, nil
}

func (m *MockDocumentStore) CountByRun(ctx context.Context, runID string) (int, error) {
	docs, _ := m.ListByRun(ctx, runID)
	return len(docs), nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	return nil
}

func (m *MockDocumentStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, doc := range m.documents {
		if doc.RunID == runID {
			delete(m.documents, id)
		}
	}
	return nil
}

// MockBlockStore is a mock implementation of BlockStore for testing
type MockBlockStore struct {
	mu     sync.RWMutex
	blocks map[string]*domain.Block
}

// NewMockBlockStore creates a new MockBlockStore
func NewMockBlockStore() *MockBlockStore {
	return &MockBlockStore{blocks: make(map[string]*domain.Block)}
}

func (m *MockBlockStore) SaveBatch(ctx context.Context, blocks []*domain.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, block := range blocks {
		cp := *block
		m.blocks[block.ID] = &cp
	}
	return nil
}

func (m *MockBlockStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Block
	for _, block := range m.blocks {
		if block.DocumentID == documentID {
			cp := *block
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (m *MockBlockStore) PatchAsset(ctx context.Context, blockID, assetID, assetKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.blocks[blockID]
	if !ok {
		return domain.ErrNotFound
	}
	block.AssetID = assetID
	block.AssetKey = assetKey
	return nil
}

func (m *MockBlockStore) CountByRun(ctx context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, block := range m.blocks {
		if block.RunID == runID {
			count++
		}
	}
	return count, nil
}

func (m *MockBlockStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, block := range m.blocks {
		if block.DocumentID == documentID {
			delete(m.blocks, id)
		}
	}
	return nil
}

func (m *MockBlockStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, block := range m.blocks {
		if block.RunID == runID {
			delete(m.blocks, id)
		}
	}
	return nil
}

// MockNodeStore is a mock implementation of NodeStore for testing
type MockNodeStore struct {
	mu    sync.RWMutex
	nodes map[string]*domain.Node
}

// NewMockNodeStore creates a new MockNodeStore
func NewMockNodeStore() *MockNodeStore {
	return &MockNodeStore{nodes: make(map[string]*domain.Node)}
}

func (m *MockNodeStore) SaveBatch(ctx context.Context, nodes []*domain.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, node := range nodes {
		cp := *node
		m.nodes[node.ID] = &cp
	}
	return nil
}

func (m *MockNodeStore) ListByDocument(ctx context.Context, documentID string) ([]*domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Node
	for _, node := range m.nodes {
		if node.DocumentID == documentID {
			cp := *node
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *MockNodeStore) ListByRun(ctx context.Context, runID string) ([]*domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Node
	for _, node := range m.nodes {
		if node.RunID == runID {
			cp := *node
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *MockNodeStore) CountByRun(ctx context.Context, runID string) (int, error) {
	nodes, _ := m.ListByRun(ctx, runID)
	return len(nodes), nil
}

func (m *MockNodeStore) MaxSortOrder(ctx context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, node := range m.nodes {
		if node.RunID == runID && node.SortOrder > max {
			max = node.SortOrder
		}
	}
	return max, nil
}

func (m *MockNodeStore) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, node := range m.nodes {
		if node.DocumentID == documentID {
			delete(m.nodes, id)
		}
	}
	return nil
}

func (m *MockNodeStore) DeleteByRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, node := range m.nodes {
		if node.RunID == runID {
			delete(m.nodes, id)
		}
	}
	return nil
}

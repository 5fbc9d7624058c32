package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// MockObjectStore is an in-memory ObjectStore for testing
type MockObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string

	// GetErr, when set, is returned by Get to simulate an unreachable backend
	GetErr error
	// PutErr, when set, is returned by Put to simulate upload failure
	PutErr error
}

// NewMockObjectStore creates a new MockObjectStore
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	m.types[key] = contentType
	return nil
}

func (m *MockObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MockObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MockObjectStore) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", domain.ErrNotFound
	}
	return fmt.Sprintf("mock://objects/%s?expires=%d", key, time.Now().Add(expiry).Unix()), nil
}

func (m *MockObjectStore) Ping(ctx context.Context) error { return nil }

// ContentType inspects a stored object's content type (test helper)
func (m *MockObjectStore) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.types[key]
}

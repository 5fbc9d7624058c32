package mocks

import (
	"context"
	"sync"
)

// MockEnqueuer is an Enqueuer for testing
type MockEnqueuer struct {
	mu       sync.Mutex
	enqueued []string // run IDs in call order

	// Err, when set, is returned by EnqueueRun to simulate enqueue failure
	Err error
}

// NewMockEnqueuer creates a new MockEnqueuer
func NewMockEnqueuer() *MockEnqueuer {
	return &MockEnqueuer{}
}

func (m *MockEnqueuer) EnqueueRun(ctx context.Context, editionID, runID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, runID)
	return nil
}

// Enqueued returns the run IDs enqueued so far (test helper)
func (m *MockEnqueuer) Enqueued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.enqueued))
	copy(out, m.enqueued)
	return out
}

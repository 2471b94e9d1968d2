package temporal

import (
	"context"
	"sync"
)

// MockStarter is a mock transfer starter for testing.
// It records started transfers in memory instead of starting workflows.
type MockStarter struct {
	mu        sync.RWMutex
	started   map[string]TransferInput
	startErr  error
	lastKey   string
	callCount int
}

// NewMockStarter creates a new mock starter.
func NewMockStarter() *MockStarter {
	return &MockStarter{
		started: make(map[string]TransferInput),
	}
}

// StartTransfer records the transfer and returns its workflow id.
func (m *MockStarter) StartTransfer(ctx context.Context, key string, input TransferInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.lastKey = key
	if m.startErr != nil {
		return "", m.startErr
	}
	if key == "" {
		key = "generated"
	}
	id := transferWorkflowID(key)
	m.started[id] = input
	return id, nil
}

// SetStartError configures the mock to return an error on StartTransfer.
func (m *MockStarter) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Started returns the input of a started workflow.
func (m *MockStarter) Started(workflowID string) (TransferInput, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	input, ok := m.started[workflowID]
	return input, ok
}

// LastKey returns the idempotency key of the last call.
func (m *MockStarter) LastKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastKey
}

// CallCount returns the number of StartTransfer calls.
func (m *MockStarter) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

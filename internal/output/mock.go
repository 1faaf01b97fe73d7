package output

import (
	"context"
	"sync"
)

// MockDispatcher records deliveries for tests.
type MockDispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

type Delivery struct {
	Text string
	Mode Mode
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (m *MockDispatcher) Deliver(_ context.Context, text string, mode Mode) error {
	if m.Err != nil {
		return m.Err
	}
	if text == "" {
		return nil
	}
	m.mu.Lock()
	m.deliveries = append(m.deliveries, Delivery{Text: text, Mode: mode})
	m.mu.Unlock()
	return nil
}

func (m *MockDispatcher) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}

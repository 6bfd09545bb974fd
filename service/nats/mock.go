package nats

import (
	"context"
	"sync"

	"github.com/brojonat/mintledger/service/ledger"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []ledger.Event
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishEvent records the event and returns any configured error.
func (m *MockPublisher) PublishEvent(ctx context.Context, event ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishError != nil {
		return m.publishError
	}
	m.publishedEvents = append(m.publishedEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of all published events.
func (m *MockPublisher) GetPublishedEvents() []ledger.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]ledger.Event, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsOfType returns events published with type t.
func (m *MockPublisher) GetPublishedEventsOfType(t ledger.EventType) []ledger.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var events []ledger.Event
	for _, e := range m.publishedEvents {
		if e.Type == t {
			events = append(events, e)
		}
	}
	return events
}

// SetPublishError configures the mock to return err on PublishEvent.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var (
	_ Publisher = (*MockPublisher)(nil)
	_ Publisher = (*JetStreamPublisher)(nil)
)

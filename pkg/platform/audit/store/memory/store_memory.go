package memory

import (
	"context"
	"sync"

	audit "enroll/pkg/platform/audit"
)

// InMemoryStore keeps events per flow. Used in tests and single-node dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.FlowID] = append(s.events[event.FlowID], event)
	return nil
}

func (s *InMemoryStore) ListByFlow(_ context.Context, flowID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[flowID]...), nil
}

// ListAll returns every recorded event across flows.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, flowEvents := range s.events {
		all = append(all, flowEvents...)
	}
	return all, nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

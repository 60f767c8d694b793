package draft

import (
	"context"
	"fmt"
	"sync"

	id "enroll/pkg/domain"
	"enroll/internal/registration/models"
	"enroll/pkg/platform/sentinel"
)

// InMemoryStore stores drafts in memory for tests/dev. Not durable; use the
// Redis store wherever a browser reload must find its draft again.
type InMemoryStore struct {
	mu     sync.RWMutex
	drafts map[id.FlowID]models.Draft
}

// NewInMemoryStore constructs an empty in-memory draft store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{drafts: make(map[id.FlowID]models.Draft)}
}

func (s *InMemoryStore) Save(_ context.Context, flowID id.FlowID, d models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[flowID] = d
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, flowID id.FlowID) (models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.drafts[flowID]; ok {
		return d, nil
	}
	return models.Draft{}, fmt.Errorf("draft for flow %s: %w", flowID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Clear(_ context.Context, flowID id.FlowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, flowID)
	return nil
}

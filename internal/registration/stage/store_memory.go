package stage

import (
	"context"
	"fmt"
	"sync"

	"enroll/internal/registration/models"
	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
)

// InMemoryStore keeps stages in a map. Used in tests and single-node dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	stages map[id.FlowID]models.Stage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{stages: make(map[id.FlowID]models.Stage)}
}

func (s *InMemoryStore) Save(_ context.Context, flowID id.FlowID, st models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[flowID] = st
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, flowID id.FlowID) (models.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stages[flowID]
	if !ok {
		return "", fmt.Errorf("stage for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	return st, nil
}

func (s *InMemoryStore) Clear(_ context.Context, flowID id.FlowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stages, flowID)
	return nil
}

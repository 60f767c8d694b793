package otp

import (
	"context"
	"fmt"
	"sync"
	"time"

	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
)

// InMemoryStore keeps code records in a map, honoring the TTL on read.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.FlowID]Record
	ttl     time.Duration
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{records: make(map[id.FlowID]Record), ttl: ttl}
}

func (s *InMemoryStore) Save(_ context.Context, flowID id.FlowID, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[flowID] = rec
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, flowID id.FlowID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[flowID]
	if !ok || time.Since(rec.IssuedAt) > s.ttl {
		return Record{}, fmt.Errorf("otp for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	return rec, nil
}

func (s *InMemoryStore) Clear(_ context.Context, flowID id.FlowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, flowID)
	return nil
}

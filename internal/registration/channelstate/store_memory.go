package channelstate

import (
	"context"
	"fmt"
	"sync"

	id "enroll/pkg/domain"
	"enroll/internal/registration/models"
	"enroll/pkg/platform/sentinel"
)

type memoryKey struct {
	flow    id.FlowID
	channel models.Channel
}

// InMemoryStore keeps channel state in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	states  map[memoryKey]models.ChannelState
	links   map[id.FlowID]string
	pending map[id.FlowID]string
}

// NewInMemoryStore constructs an empty in-memory channel state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:  make(map[memoryKey]models.ChannelState),
		links:   make(map[id.FlowID]string),
		pending: make(map[id.FlowID]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, flowID id.FlowID, state models.ChannelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[memoryKey{flowID, state.Channel}] = state
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, flowID id.FlowID, channel models.Channel) (models.ChannelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[memoryKey{flowID, channel}]; ok {
		return st, nil
	}
	return models.ChannelState{}, fmt.Errorf("channel state %s/%s: %w", flowID, channel, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ClearPendingToken(_ context.Context, flowID id.FlowID, channel models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{flowID, channel}
	if st, ok := s.states[key]; ok {
		st.PendingToken = ""
		s.states[key] = st
	}
	return nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, flowID id.FlowID, channel models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{flowID, channel}
	st, ok := s.states[key]
	if !ok {
		st = models.ChannelState{Channel: channel}
	}
	st.Verified = true
	s.states[key] = st
	return nil
}

func (s *InMemoryStore) Verified(_ context.Context, flowID id.FlowID, channel models.Channel) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[memoryKey{flowID, channel}]
	return ok && st.Verified, nil
}

func (s *InMemoryStore) RecordLinkEmail(_ context.Context, flowID id.FlowID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[flowID] = email
	return nil
}

func (s *InMemoryStore) LinkEmail(_ context.Context, flowID id.FlowID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if email, ok := s.links[flowID]; ok && email != "" {
		return email, nil
	}
	return "", fmt.Errorf("link email for flow %s: %w", flowID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) SavePendingUser(_ context.Context, flowID id.FlowID, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[flowID] = subject
	return nil
}

func (s *InMemoryStore) PendingUser(_ context.Context, flowID id.FlowID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subject, ok := s.pending[flowID]; ok && subject != "" {
		return subject, nil
	}
	return "", fmt.Errorf("pending user for flow %s: %w", flowID, sentinel.ErrNotFound)
}

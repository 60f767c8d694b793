package channelstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "enroll/pkg/domain"
	"enroll/internal/registration/models"
	"enroll/pkg/platform/sentinel"
)

const (
	stateKeyPrefix   = "enroll:chan:"
	linkKeyPrefix    = "enroll:linkemail:"
	pendingKeyPrefix = "enroll:pending:"
)

// RedisStore persists channel state in Redis with the same TTL as the draft,
// so a flow's state expires as one unit.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed channel state store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func stateKey(flowID id.FlowID, channel models.Channel) string {
	return stateKeyPrefix + flowID.String() + ":" + string(channel)
}

func (s *RedisStore) Save(ctx context.Context, flowID id.FlowID, state models.ChannelState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal channel state: %w", err)
	}
	// SET replaces the whole value, so a prior pending token can never
	// survive a new send.
	if err := s.client.Set(ctx, stateKey(flowID, state.Channel), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save channel state: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, flowID id.FlowID, channel models.Channel) (models.ChannelState, error) {
	raw, err := s.client.Get(ctx, stateKey(flowID, channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ChannelState{}, fmt.Errorf("channel state %s/%s: %w", flowID, channel, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.ChannelState{}, fmt.Errorf("find channel state: %w", err)
	}

	var state models.ChannelState
	if err := json.Unmarshal(raw, &state); err != nil {
		return models.ChannelState{}, fmt.Errorf("unmarshal channel state: %w", err)
	}
	return state, nil
}

func (s *RedisStore) ClearPendingToken(ctx context.Context, flowID id.FlowID, channel models.Channel) error {
	state, err := s.Find(ctx, flowID, channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	state.PendingToken = ""
	return s.Save(ctx, flowID, state)
}

func (s *RedisStore) MarkVerified(ctx context.Context, flowID id.FlowID, channel models.Channel) error {
	state, err := s.Find(ctx, flowID, channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		state = models.ChannelState{Channel: channel}
	} else if err != nil {
		return err
	}
	state.Verified = true
	return s.Save(ctx, flowID, state)
}

func (s *RedisStore) Verified(ctx context.Context, flowID id.FlowID, channel models.Channel) (bool, error) {
	state, err := s.Find(ctx, flowID, channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state.Verified, nil
}

func (s *RedisStore) RecordLinkEmail(ctx context.Context, flowID id.FlowID, email string) error {
	if err := s.client.Set(ctx, linkKeyPrefix+flowID.String(), email, s.ttl).Err(); err != nil {
		return fmt.Errorf("record link email: %w", err)
	}
	return nil
}

func (s *RedisStore) LinkEmail(ctx context.Context, flowID id.FlowID) (string, error) {
	email, err := s.client.Get(ctx, linkKeyPrefix+flowID.String()).Result()
	if errors.Is(err, redis.Nil) || email == "" {
		return "", fmt.Errorf("link email for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find link email: %w", err)
	}
	return email, nil
}

func (s *RedisStore) SavePendingUser(ctx context.Context, flowID id.FlowID, subject string) error {
	if err := s.client.Set(ctx, pendingKeyPrefix+flowID.String(), subject, s.ttl).Err(); err != nil {
		return fmt.Errorf("save pending user: %w", err)
	}
	return nil
}

func (s *RedisStore) PendingUser(ctx context.Context, flowID id.FlowID) (string, error) {
	subject, err := s.client.Get(ctx, pendingKeyPrefix+flowID.String()).Result()
	if errors.Is(err, redis.Nil) || subject == "" {
		return "", fmt.Errorf("pending user for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find pending user: %w", err)
	}
	return subject, nil
}

package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"enroll/internal/registration/models"
	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
)

const stageKeyPrefix = "enroll:stage:"

// RedisStore persists stages in Redis with the same TTL as the draft, so an
// abandoned flow forgets its position and its profile together.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed stage store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func stageKey(flowID id.FlowID) string {
	return stageKeyPrefix + flowID.String()
}

func (s *RedisStore) Save(ctx context.Context, flowID id.FlowID, st models.Stage) error {
	if err := s.client.Set(ctx, stageKey(flowID), string(st), s.ttl).Err(); err != nil {
		return fmt.Errorf("save stage: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, flowID id.FlowID) (models.Stage, error) {
	raw, err := s.client.Get(ctx, stageKey(flowID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("stage for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find stage: %w", err)
	}
	return models.Stage(raw), nil
}

func (s *RedisStore) Clear(ctx context.Context, flowID id.FlowID) error {
	if err := s.client.Del(ctx, stageKey(flowID)).Err(); err != nil {
		return fmt.Errorf("clear stage: %w", err)
	}
	return nil
}

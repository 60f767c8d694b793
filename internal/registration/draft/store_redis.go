package draft

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

const draftKeyPrefix = "enroll:draft:"

// RedisStore persists drafts in Redis under one fixed key per flow with a
// TTL. The TTL bounds how long an abandoned registration lingers; an active
// user refreshes it on every save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed draft store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func draftKey(flowID id.FlowID) string {
	return draftKeyPrefix + flowID.String()
}

func (s *RedisStore) Save(ctx context.Context, flowID id.FlowID, d models.Draft) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(flowID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, flowID id.FlowID) (models.Draft, error) {
	raw, err := s.client.Get(ctx, draftKey(flowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Draft{}, fmt.Errorf("draft for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Draft{}, fmt.Errorf("find draft: %w", err)
	}

	var d models.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return d, nil
}

func (s *RedisStore) Clear(ctx context.Context, flowID id.FlowID) error {
	if err := s.client.Del(ctx, draftKey(flowID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

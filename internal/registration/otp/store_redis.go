package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "enroll/pkg/domain"
	"enroll/pkg/platform/sentinel"
)

const otpKeyPrefix = "enroll:otp:"

// RedisStore persists code records with the code TTL enforced by Redis
// expiry. Attempt counting rides on the same record: Save rewrites it with
// KeepTTL so a guess does not extend the code's life.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed OTP store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func otpKey(flowID id.FlowID) string {
	return otpKeyPrefix + flowID.String()
}

func (s *RedisStore) Save(ctx context.Context, flowID id.FlowID, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}

	// A fresh issue gets the full TTL; an attempt-count update keeps the
	// remaining one.
	exists, err := s.client.Exists(ctx, otpKey(flowID)).Result()
	if err != nil {
		return fmt.Errorf("check otp record: %w", err)
	}
	ttl := s.ttl
	if exists == 1 && rec.Attempts > 0 {
		ttl = redis.KeepTTL
	}

	if err := s.client.Set(ctx, otpKey(flowID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save otp record: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, flowID id.FlowID) (Record, error) {
	raw, err := s.client.Get(ctx, otpKey(flowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("otp for flow %s: %w", flowID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("find otp record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal otp record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Clear(ctx context.Context, flowID id.FlowID) error {
	if err := s.client.Del(ctx, otpKey(flowID)).Err(); err != nil {
		return fmt.Errorf("clear otp record: %w", err)
	}
	return nil
}

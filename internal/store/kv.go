package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-ledger/internal/domain"

	"github.com/go-redis/redis/v8"
)

var ErrMiss = errors.New("cache miss")

// conditionKeyPrefix 状态快照 key 前缀
const conditionKeyPrefix = "ledger:condition:"

type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// ConditionKey 参与者状态快照 key
func ConditionKey(participantID string) string {
	return conditionKeyPrefix + participantID
}

// SaveCondition 写入状态快照（整体替换）
func SaveCondition(ctx context.Context, kv KV, snap *domain.ConditionSnapshot, ttl time.Duration) error {
	if snap == nil || snap.ParticipantID == "" {
		return fmt.Errorf("snapshot without participant")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return kv.Set(ctx, ConditionKey(snap.ParticipantID), string(b), ttl)
}

// LoadCondition 读取状态快照；不存在或已过期返回 ErrMiss
func LoadCondition(ctx context.Context, kv KV, participantID string) (*domain.ConditionSnapshot, error) {
	val, err := kv.Get(ctx, ConditionKey(participantID))
	if err != nil {
		return nil, err
	}
	var snap domain.ConditionSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

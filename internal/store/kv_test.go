package store

import (
	"context"
	"testing"
	"time"

	"wisefido-ledger/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, NewRedisKV(c)
}

func TestRedisKV_GetMiss(t *testing.T) {
	_, kv := newTestKV(t)
	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCondition_SaveLoadAndExpire(t *testing.T) {
	mr, kv := newTestKV(t)
	ctx := context.Background()

	snap := domain.EmptySnapshot()
	snap.ParticipantID = "p1"
	snap.Condition = domain.ConditionAtRisk
	snap.HeartRateSeries = []domain.TelemetryPoint{{Time: "09:00:00", Value: 112}}
	snap.SystemLoad = 5

	require.NoError(t, SaveCondition(ctx, kv, snap, 30*time.Second))
	assert.True(t, mr.Exists("ledger:condition:p1"))

	got, err := LoadCondition(ctx, kv, "p1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	mr.FastForward(31 * time.Second)
	_, err = LoadCondition(ctx, kv, "p1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSaveCondition_RequiresParticipant(t *testing.T) {
	_, kv := newTestKV(t)
	assert.Error(t, SaveCondition(context.Background(), kv, domain.EmptySnapshot(), time.Second))
}

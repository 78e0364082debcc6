package publisher

import (
	"context"
	"fmt"

	"wisefido-ledger/internal/common/redis"
	"wisefido-ledger/internal/domain"

	"go.uber.org/zap"
)

// DefaultStreamMaxLen 事件流近似最大长度
const DefaultStreamMaxLen int64 = 10000

// RedisStreamPublisher 将已提交事件 XADD 到 Redis Stream
// 字段: data (事件 JSON), timestamp, event_id, participant_id, event_type
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewRedisStreamPublisher 创建 Redis Stream 分发器
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *RedisStreamPublisher {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e *domain.Event) error {
	id, err := redis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, e, map[string]interface{}{
		"event_id":       e.ID,
		"participant_id": e.ParticipantID,
		"event_type":     string(e.Type),
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to stream %s: %w", p.stream, err)
	}
	p.logger.Debug("Published event to stream",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("event_id", e.ID),
	)
	return nil
}

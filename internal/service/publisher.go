package service

import (
	"context"

	"wisefido-ledger/internal/domain"
)

// EventPublisher 已提交事件的下游分发（Redis Streams / MQTT）
// 分发失败只记录日志，不影响已提交的准入结果
type EventPublisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, *domain.Event) error { return nil }

package repository

import (
	"context"
	"errors"
	"time"

	"wisefido-ledger/internal/domain"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCompletion 同一参与者的同一任务已存在 completed 记录
	ErrDuplicateCompletion = errors.New("task already completed for participant")
)

// EventStore 只追加的事件存储
// 注意：不提供任何 update/delete 方法，更正只能通过追加新事件表达
type EventStore interface {
	// CreateParticipant 创建参与者（seed/onboarding 使用）
	CreateParticipant(ctx context.Context, p *domain.Participant) error

	// LatestParticipant 最近创建的参与者；不存在时返回 ErrNotFound
	LatestParticipant(ctx context.Context) (*domain.Participant, error)

	// ListRecentEvents 最近 limit 条事件，按 occurred_at 倒序，明细已加载
	ListRecentEvents(ctx context.Context, participantID string, limit int) ([]*domain.Event, error)

	// ListEventsInRange [start, end] 闭区间内的事件，按 occurred_at 正序，明细已加载
	ListEventsInRange(ctx context.Context, participantID string, start, end time.Time) ([]*domain.Event, error)

	// HasCompletedTask 是否存在该任务的 completed 执行记录（不限时间）
	HasCompletedTask(ctx context.Context, participantID, taskCode string) (bool, error)

	// AppendEvent 追加事件及其明细（单事务）
	// 重复的 completed 任务执行返回 ErrDuplicateCompletion，且不写入任何数据
	AppendEvent(ctx context.Context, e *domain.Event) error

	// CountEvents 参与者事件总数
	CountEvents(ctx context.Context, participantID string) (int, error)
}

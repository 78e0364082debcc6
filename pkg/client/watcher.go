package client

import (
	"context"
	"sync"
	"time"

	"wisefido-ledger/internal/domain"

	"go.uber.org/zap"
)

// ConditionWatcher 定时拉取参与者状态并整体替换本地快照
type ConditionWatcher struct {
	client        *Client
	participantID string
	interval      time.Duration
	logger        *zap.Logger

	mu        sync.RWMutex
	snapshot  *domain.ConditionSnapshot
	updatedAt time.Time
}

// NewConditionWatcher 创建状态轮询器；participantID 为空时跟踪最近的参与者
func NewConditionWatcher(client *Client, participantID string, interval time.Duration, logger *zap.Logger) *ConditionWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ConditionWatcher{
		client:        client,
		participantID: participantID,
		interval:      interval,
		logger:        logger,
	}
}

// Run 阻塞运行直到 ctx 取消
func (w *ConditionWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh 拉取一次；失败时保留上一次的快照
func (w *ConditionWatcher) Refresh(ctx context.Context) error {
	snap, err := w.client.State(ctx, w.participantID)
	if err != nil {
		w.logger.Warn("Failed to refresh condition", zap.String("participant_id", w.participantID), zap.Error(err))
		return err
	}
	w.mu.Lock()
	w.snapshot = snap
	w.updatedAt = time.Now()
	w.mu.Unlock()
	return nil
}

// Latest 最近一次成功拉取的快照及时间；尚未成功时返回 nil
func (w *ConditionWatcher) Latest() (*domain.ConditionSnapshot, time.Time) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot, w.updatedAt
}

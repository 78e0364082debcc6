// Package snapshot 定时重建参与者状态并写入 KV，供看板等外部消费者读取
package snapshot

import (
	"context"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/store"

	"go.uber.org/zap"
)

// Reconstructor service.ConditionService 实现此接口
type Reconstructor interface {
	Reconstruct(ctx context.Context, participantID string) (*domain.ConditionSnapshot, error)
}

// Poller 定时拉取：ticker -> 重建 -> 整体替换 KV 中的快照
type Poller struct {
	source       Reconstructor
	kv           store.KV
	interval     time.Duration
	ttl          time.Duration
	participants []string
	logger       *zap.Logger
}

// NewPoller 创建快照轮询器
// participants 为空时只跟踪最近创建的参与者
func NewPoller(source Reconstructor, kv store.KV, interval, ttl time.Duration, participants []string, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if len(participants) == 0 {
		participants = []string{""}
	}
	return &Poller{
		source:       source,
		kv:           kv,
		interval:     interval,
		ttl:          ttl,
		participants: participants,
		logger:       logger,
	}
}

// Run 阻塞运行直到 ctx 取消
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting condition snapshot poller",
		zap.Duration("interval", p.interval),
		zap.Duration("ttl", p.ttl),
	)

	// 启动时先执行一次
	p.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Condition snapshot poller stopped")
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce 对每个参与者重建一次，返回成功写入的快照数
func (p *Poller) RunOnce(ctx context.Context) int {
	written := 0
	for _, id := range p.participants {
		snap, err := p.source.Reconstruct(ctx, id)
		if err != nil {
			p.logger.Error("Failed to reconstruct condition", zap.String("participant_id", id), zap.Error(err))
			continue
		}
		// 没有任何参与者时的基线不写入
		if snap.ParticipantID == "" {
			continue
		}
		if err := store.SaveCondition(ctx, p.kv, snap, p.ttl); err != nil {
			p.logger.Error("Failed to save condition snapshot", zap.String("participant_id", snap.ParticipantID), zap.Error(err))
			continue
		}
		written++
	}
	return written
}

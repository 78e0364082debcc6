// Package publisher 已提交事件的下游分发
package publisher

import (
	"context"
	"errors"

	"wisefido-ledger/internal/domain"
)

// Publisher 与 service.EventPublisher 一致
type Publisher interface {
	Publish(ctx context.Context, e *domain.Event) error
}

// Multi 依次分发到所有目标；单个目标失败不影响其他目标
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e *domain.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

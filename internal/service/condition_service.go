package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/projection"
	"wisefido-ledger/internal/repository"

	"go.uber.org/zap"
)

// ConditionService 参与者状态重建服务（每次请求实时计算，不缓存）
type ConditionService struct {
	store  repository.EventStore
	window int
	loc    *time.Location
	logger *zap.Logger
}

// NewConditionService 创建状态重建服务
func NewConditionService(store repository.EventStore, window int, loc *time.Location, logger *zap.Logger) *ConditionService {
	if window <= 0 {
		window = projection.DefaultRecentWindow
	}
	if loc == nil {
		loc = time.Local
	}
	return &ConditionService{
		store:  store,
		window: window,
		loc:    loc,
		logger: logger,
	}
}

// Reconstruct 重建参与者当前状态
// participantID 为空时回退到最近创建的参与者；没有任何参与者时返回 stable 基线
func (s *ConditionService) Reconstruct(ctx context.Context, participantID string) (*domain.ConditionSnapshot, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		p, err := s.store.LatestParticipant(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.EmptySnapshot(), nil
			}
			s.logger.Error("Failed to resolve latest participant", zap.Error(err))
			return nil, fmt.Errorf("failed to resolve participant: %w", err)
		}
		participantID = p.ID
	}

	events, err := s.store.ListRecentEvents(ctx, participantID, s.window)
	if err != nil {
		s.logger.Error("Failed to load recent events",
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}

	snap := projection.Reconstruct(participantID, events, s.loc)
	s.logger.Debug("Reconstructed condition",
		zap.String("participant_id", participantID),
		zap.String("condition", string(snap.Condition)),
		zap.Int("events", len(events)),
	)
	return snap, nil
}

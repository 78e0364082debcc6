package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSeedWorkerID 种子数据的 actor
const DefaultSeedWorkerID = "worker@attendcare.test"

// SeedService 测试数据初始化：创建一个参与者及其最近两小时的事件
type SeedService struct {
	store  repository.EventStore
	now    Clock
	rand   func() float64
	logger *zap.Logger
}

// NewSeedService 创建种子数据服务
func NewSeedService(store repository.EventStore, logger *zap.Logger) *SeedService {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &SeedService{
		store:  store,
		now:    time.Now,
		rand:   src.Float64,
		logger: logger,
	}
}

// SeedResult 种子数据结果
type SeedResult struct {
	Message       string `json:"message"`
	ParticipantID string `json:"participantId"`
	Events        int    `json:"events"`
}

// Seed 创建参与者并追加事件；workerID 为空时使用 DefaultSeedWorkerID
func (s *SeedService) Seed(ctx context.Context, workerID string) (*SeedResult, error) {
	if workerID == "" {
		workerID = DefaultSeedWorkerID
	}
	now := s.now()

	dob := time.Date(1945, time.June, 12, 0, 0, 0, 0, time.UTC)
	participant := &domain.Participant{
		ID:        uuid.New().String(),
		Name:      "Evelyn Carter",
		DOB:       &dob,
		Address:   "123 Care Facility Lane, Suite 402",
		CreatedAt: now,
	}
	if err := s.store.CreateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	events := s.buildEvents(participant.ID, workerID, now)
	for _, e := range events {
		if err := s.store.AppendEvent(ctx, e); err != nil {
			s.logger.Error("Failed to seed event",
				zap.String("participant_id", participant.ID),
				zap.String("event_type", string(e.Type)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to seed %s event: %w", e.Type, err)
		}
	}

	s.logger.Info("Seeded participant",
		zap.String("participant_id", participant.ID),
		zap.Int("events", len(events)),
	)
	return &SeedResult{
		Message:       "Seeded test Participant and Events",
		ParticipantID: participant.ID,
		Events:        len(events),
	}, nil
}

func (s *SeedService) buildEvents(participantID, workerID string, now time.Time) []*domain.Event {
	at := func(ago time.Duration) time.Time { return now.Add(-ago) }
	ev := func(occurredAt time.Time, d domain.Detail) *domain.Event {
		return domain.NewEvent(uuid.New().String(), participantID, workerID, occurredAt, d)
	}

	events := []*domain.Event{
		ev(at(2*time.Hour), domain.Presence{Latitude: 40.7128, Longitude: -74.0060, Accuracy: 5.0}),
	}

	// 每 15 分钟一组心率/血氧
	for i := 0; i < 5; i++ {
		t := at(time.Duration(120-i*15) * time.Minute)
		events = append(events,
			ev(t, domain.Observation{Metric: domain.MetricHeartRate, Value: 75 + s.rand()*5, Unit: "bpm"}),
			ev(t, domain.Observation{Metric: domain.MetricSpO2, Value: 96 + s.rand()*2, Unit: "%"}),
		)
	}

	events = append(events,
		ev(at(time.Hour), domain.TaskExecution{TaskCode: "MED_ADMIN_AM", Result: domain.TaskResultCompleted}),
		ev(at(10*time.Minute), domain.Observation{Metric: domain.MetricHeartRate, Value: 105, Unit: "bpm"}),
		ev(at(9*time.Minute), domain.Alert{RuleCode: "HR_TACHYCARDIA_DETECTED", Severity: domain.SeverityCritical}),
		ev(now, domain.Note{Text: "Elevated HR verified. Hydration protocol initiated."}),
	)
	return events
}

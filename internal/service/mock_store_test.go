package service

import (
	"context"
	"time"

	"wisefido-ledger/internal/domain"

	"github.com/stretchr/testify/mock"
)

// mockEventStore EventStore 的 testify mock，用于注入存储故障
type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockEventStore) LatestParticipant(ctx context.Context) (*domain.Participant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Participant), args.Error(1)
}

func (m *mockEventStore) ListRecentEvents(ctx context.Context, participantID string, limit int) ([]*domain.Event, error) {
	args := m.Called(ctx, participantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *mockEventStore) ListEventsInRange(ctx context.Context, participantID string, start, end time.Time) ([]*domain.Event, error) {
	args := m.Called(ctx, participantID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *mockEventStore) HasCompletedTask(ctx context.Context, participantID, taskCode string) (bool, error) {
	args := m.Called(ctx, participantID, taskCode)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventStore) AppendEvent(ctx context.Context, e *domain.Event) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockEventStore) CountEvents(ctx context.Context, participantID string) (int, error) {
	args := m.Called(ctx, participantID)
	return args.Int(0), args.Error(1)
}

// mockPublisher 记录分发调用
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e *domain.Event) error {
	return m.Called(ctx, e).Error(0)
}

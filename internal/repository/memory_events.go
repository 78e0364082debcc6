package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-ledger/internal/domain"
)

// MemoryEventStore: DB 未就绪时的联测/单元测试用实现
// - 检查与写入在同一把锁内完成，保证 completed 唯一性
// - 返回的切片是副本，调用方修改不影响存储
type MemoryEventStore struct {
	mu sync.RWMutex

	participants []*domain.Participant
	byID         map[string]*domain.Participant

	// participantID -> events（按追加顺序）
	events map[string][]*domain.Event
	ids    map[string]struct{}
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byID:   map[string]*domain.Participant{},
		events: map[string][]*domain.Event{},
		ids:    map[string]struct{}{},
	}
}

var _ EventStore = (*MemoryEventStore)(nil)

func (s *MemoryEventStore) CreateParticipant(_ context.Context, p *domain.Participant) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[p.ID]; ok {
		return fmt.Errorf("participant %s already exists", p.ID)
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.participants = append(s.participants, &cp)
	s.byID[cp.ID] = &cp
	return nil
}

func (s *MemoryEventStore) LatestParticipant(_ context.Context) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Participant
	for _, p := range s.participants {
		// 创建时间相同时取后创建的
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryEventStore) ListRecentEvents(_ context.Context, participantID string, limit int) ([]*domain.Event, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant_id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked(participantID)
	out := make([]*domain.Event, 0, limit)
	for i := len(sorted) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, sorted[i])
	}
	return out, nil
}

func (s *MemoryEventStore) ListEventsInRange(_ context.Context, participantID string, start, end time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.Event{}
	for _, e := range s.sortedLocked(participantID) {
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryEventStore) HasCompletedTask(_ context.Context, participantID, taskCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCompletedLocked(participantID, taskCode), nil
}

func (s *MemoryEventStore) AppendEvent(_ context.Context, e *domain.Event) error {
	if e == nil {
		return fmt.Errorf("event is required")
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[e.ParticipantID]; !ok {
		return fmt.Errorf("participant %s does not exist", e.ParticipantID)
	}
	if _, ok := s.ids[e.ID]; ok {
		return fmt.Errorf("event %s already exists", e.ID)
	}
	if te, ok := e.TaskExecution(); ok && te.Result == domain.TaskResultCompleted {
		if s.hasCompletedLocked(e.ParticipantID, te.TaskCode) {
			return ErrDuplicateCompletion
		}
	}

	cp := *e
	s.events[e.ParticipantID] = append(s.events[e.ParticipantID], &cp)
	s.ids[e.ID] = struct{}{}
	return nil
}

func (s *MemoryEventStore) CountEvents(_ context.Context, participantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[participantID]), nil
}

func (s *MemoryEventStore) hasCompletedLocked(participantID, taskCode string) bool {
	for _, e := range s.events[participantID] {
		if e.IsCompletedTask(taskCode) {
			return true
		}
	}
	return false
}

// sortedLocked 按 occurred_at 正序（相同时间保持追加顺序），返回副本
func (s *MemoryEventStore) sortedLocked(participantID string) []*domain.Event {
	src := s.events[participantID]
	out := make([]*domain.Event, len(src))
	for i, e := range src {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

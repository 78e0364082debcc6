package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/repository"

	"go.uber.org/zap"
)

// 可接受的时间格式（按顺序尝试）；不带时区的格式按服务配置的时区解析
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp 解析 ISO-8601 时间；格式错误返回 InputError，不会回退到当前时间
func ParseTimestamp(field, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, missingField(field)
	}
	if loc == nil {
		loc = time.Local
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, value)
		} else {
			t, err = time.ParseInLocation(layout, value, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidField(field, fmt.Sprintf("%q is not an ISO-8601 timestamp", value))
}

// ReplayService 按时间范围回放事件（只读）
type ReplayService struct {
	store  repository.EventStore
	loc    *time.Location
	logger *zap.Logger
}

// NewReplayService 创建回放服务
func NewReplayService(store repository.EventStore, loc *time.Location, logger *zap.Logger) *ReplayService {
	if loc == nil {
		loc = time.Local
	}
	return &ReplayService{store: store, loc: loc, logger: logger}
}

// ReplayRequest 回放请求（三个字段均必填）
type ReplayRequest struct {
	ParticipantID string
	Start         string
	End           string
}

// ReplayResult 回放结果
type ReplayResult struct {
	ParticipantID string          `json:"participantId"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Events        []*domain.Event `json:"events"`
}

// Replay 返回 [start, end] 闭区间内的全部事件，按 occurredAt 升序
func (s *ReplayService) Replay(ctx context.Context, req ReplayRequest) (*ReplayResult, error) {
	participantID := strings.TrimSpace(req.ParticipantID)
	if participantID == "" {
		return nil, missingField("participantId")
	}
	start, err := ParseTimestamp("start", req.Start, s.loc)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimestamp("end", req.End, s.loc)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, &InputError{Field: "start", Message: "start must not be after end"}
	}

	events, err := s.store.ListEventsInRange(ctx, participantID, start, end)
	if err != nil {
		s.logger.Error("Failed to fetch replay",
			zap.String("participant_id", participantID),
			zap.Time("start", start),
			zap.Time("end", end),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch replay: %w", err)
	}
	if events == nil {
		events = []*domain.Event{}
	}

	return &ReplayResult{
		ParticipantID: participantID,
		Start:         start,
		End:           end,
		Events:        events,
	}, nil
}

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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 违规信息
const (
	violationUnassignedWorker = "Unassigned worker attempted action."
	violationWindowFormat     = "Action out of allowed time window (%s - %s)"
	violationSequenceFormat   = "Sequence violation: Required prior task [%s] is incomplete."
	violationDuplicateFormat  = "Duplicate completion: task [%s] is already completed."
)

// Clock 当前时间来源（测试中注入固定时间）
type Clock func() time.Time

// TaskAdmissionService 任务执行准入：规则校验 -> 故障注入 -> 追加事件 -> 分发
type TaskAdmissionService struct {
	store     repository.EventStore
	faults    *FaultInjector
	publisher EventPublisher
	now       Clock
	loc       *time.Location
	logger    *zap.Logger
}

// NewTaskAdmissionService 创建任务准入服务
// faults/publisher 可为 nil（不注入故障 / 不分发）
func NewTaskAdmissionService(store repository.EventStore, faults *FaultInjector, publisher EventPublisher, loc *time.Location, logger *zap.Logger) *TaskAdmissionService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskAdmissionService{
		store:     store,
		faults:    faults,
		publisher: publisher,
		now:       time.Now,
		loc:       loc,
		logger:    logger,
	}
}

// WithClock 替换时间来源
func (s *TaskAdmissionService) WithClock(c Clock) *TaskAdmissionService {
	if c != nil {
		s.now = c
	}
	return s
}

// AdmitTaskRequest 任务执行准入请求
type AdmitTaskRequest struct {
	WorkerID             string
	ParticipantID        string
	TaskCode             string
	WindowStart          time.Time
	WindowEnd            time.Time
	RequiredPreviousTask string
}

// AdmitTaskResult 准入成功结果
type AdmitTaskResult struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Admit 校验并追加一条 completed 的 TASK_EXECUTION 事件
// 每次调用都会重新校验，重试不复用之前的校验结果
func (s *TaskAdmissionService) Admit(ctx context.Context, req AdmitTaskRequest) (*AdmitTaskResult, error) {
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	req.TaskCode = strings.TrimSpace(req.TaskCode)
	req.RequiredPreviousTask = strings.TrimSpace(req.RequiredPreviousTask)

	if req.ParticipantID == "" {
		return nil, missingField("participantId")
	}
	if req.TaskCode == "" {
		return nil, missingField("taskCode")
	}
	if req.WindowStart.IsZero() {
		return nil, missingField("windowStart")
	}
	if req.WindowEnd.IsZero() {
		return nil, missingField("windowEnd")
	}

	now := s.now()
	violations, err := s.validate(ctx, req, now)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		s.logger.Warn("Task admission rejected",
			zap.String("participant_id", req.ParticipantID),
			zap.String("task_code", req.TaskCode),
			zap.Strings("violations", violations),
		)
		return nil, &ValidationError{Violations: violations}
	}

	// 故障注入发生在写入之前，不持有任何事务
	if err := s.faults.Maybe(ctx); err != nil {
		if errors.Is(err, ErrTransient) {
			s.logger.Warn("Simulated gateway drop",
				zap.String("participant_id", req.ParticipantID),
				zap.String("task_code", req.TaskCode),
			)
		}
		return nil, err
	}

	event := domain.NewEvent(uuid.New().String(), req.ParticipantID, req.WorkerID, now,
		domain.TaskExecution{TaskCode: req.TaskCode, Result: domain.TaskResultCompleted})

	if err := s.store.AppendEvent(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateCompletion) {
			violations := []string{fmt.Sprintf(violationDuplicateFormat, req.TaskCode)}
			s.logger.Warn("Task admission rejected",
				zap.String("participant_id", req.ParticipantID),
				zap.String("task_code", req.TaskCode),
				zap.Strings("violations", violations),
			)
			return nil, &ValidationError{Violations: violations}
		}
		s.logger.Error("Failed to append task execution",
			zap.String("participant_id", req.ParticipantID),
			zap.String("task_code", req.TaskCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to append task execution: %w", err)
	}

	s.logger.Info("Task admitted",
		zap.String("event_id", event.ID),
		zap.String("participant_id", event.ParticipantID),
		zap.String("task_code", req.TaskCode),
	)

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish admitted event", zap.String("event_id", event.ID), zap.Error(err))
	}

	return &AdmitTaskResult{EventID: event.ID, OccurredAt: event.OccurredAt}, nil
}

// validate 三条规则独立评估，收集全部违规项
func (s *TaskAdmissionService) validate(ctx context.Context, req AdmitTaskRequest, now time.Time) ([]string, error) {
	var violations []string

	if req.WorkerID == "" {
		violations = append(violations, violationUnassignedWorker)
	}

	if now.Before(req.WindowStart) || now.After(req.WindowEnd) {
		violations = append(violations, fmt.Sprintf(violationWindowFormat,
			projection.TimeLabel(req.WindowStart, s.loc),
			projection.TimeLabel(req.WindowEnd, s.loc),
		))
	}

	if req.RequiredPreviousTask != "" {
		done, err := s.store.HasCompletedTask(ctx, req.ParticipantID, req.RequiredPreviousTask)
		if err != nil {
			s.logger.Error("Failed to check prior task",
				zap.String("participant_id", req.ParticipantID),
				zap.String("required_task", req.RequiredPreviousTask),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to check prior task: %w", err)
		}
		if !done {
			violations = append(violations, fmt.Sprintf(violationSequenceFormat, req.RequiredPreviousTask))
		}
	}

	return violations, nil
}

package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/service"
	"wisefido-ledger/internal/store"

	"go.uber.org/zap"
)

type ConditionReader interface {
	Reconstruct(ctx context.Context, participantID string) (*domain.ConditionSnapshot, error)
}

type Replayer interface {
	Replay(ctx context.Context, req service.ReplayRequest) (*service.ReplayResult, error)
}

type TaskAdmitter interface {
	Admit(ctx context.Context, req service.AdmitTaskRequest) (*service.AdmitTaskResult, error)
}

type Seeder interface {
	Seed(ctx context.Context, workerID string) (*service.SeedResult, error)
}

// LedgerHandler 事件账本 HTTP 入口
type LedgerHandler struct {
	condition ConditionReader
	replay    Replayer
	admission TaskAdmitter
	seed      Seeder   // nil 表示未启用
	snapshots store.KV // nil 表示快照轮询未启用
	loc       *time.Location
	logger    *zap.Logger
}

// NewLedgerHandler 创建 LedgerHandler；seed 为 nil 时不注册 /test/seed
func NewLedgerHandler(condition ConditionReader, replay Replayer, admission TaskAdmitter, seed Seeder, loc *time.Location, logger *zap.Logger) *LedgerHandler {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerHandler{
		condition: condition,
		replay:    replay,
		admission: admission,
		seed:      seed,
		loc:       loc,
		logger:    logger,
	}
}

// WithSnapshots 启用 /state/snapshot，读取轮询器写入的状态快照
func (h *LedgerHandler) WithSnapshots(kv store.KV) *LedgerHandler {
	h.snapshots = kv
	return h
}

func (h *LedgerHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

// GetState GET /ledger/api/v1/state[?participantId=]
func (h *LedgerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.condition.Reconstruct(r.Context(), r.URL.Query().Get("participantId"))
	if err != nil {
		h.writeError(w, err, "Failed to reconstruct state")
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

// GetStateSnapshot GET /ledger/api/v1/state/snapshot?participantId=
// 只读缓存，不触发重建；/state 始终重新计算
func (h *LedgerHandler) GetStateSnapshot(w http.ResponseWriter, r *http.Request) {
	participantID := strings.TrimSpace(r.URL.Query().Get("participantId"))
	if participantID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("participantId is required"))
		return
	}
	snap, err := store.LoadCondition(r.Context(), h.snapshots, participantID)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			writeJSON(w, http.StatusNotFound, Fail("Snapshot not available"))
			return
		}
		h.logger.Error("Failed to load condition snapshot", zap.String("participant_id", participantID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("Failed to load snapshot"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(snap))
}

// GetReplay GET /ledger/api/v1/replay?participantId=&start=&end=
func (h *LedgerHandler) GetReplay(w http.ResponseWriter, r *http.Request) {
	res, err := h.replay.Replay(r.Context(), replayRequestFromQuery(r))
	if err != nil {
		h.writeError(w, err, "Failed to fetch replay")
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"events": res.Events}))
}

// ExportReplay GET /ledger/api/v1/replay/export 回放结果导出为 xlsx
func (h *LedgerHandler) ExportReplay(w http.ResponseWriter, r *http.Request) {
	res, err := h.replay.Replay(r.Context(), replayRequestFromQuery(r))
	if err != nil {
		h.writeError(w, err, "Failed to fetch replay")
		return
	}

	excelData, err := GenerateReplayExport(res, h.loc)
	if err != nil {
		h.logger.Error("Failed to generate replay export", zap.String("participant_id", res.ParticipantID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("Failed to generate export"))
		return
	}

	filename := fmt.Sprintf("replay-%s-%s.xlsx", res.ParticipantID, res.Start.In(h.loc).Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(excelData)
}

// admitTaskBody 任务准入请求体；timeWindowStart/timeWindowEnd 为旧字段名
type admitTaskBody struct {
	WorkerID             string  `json:"workerId"`
	ParticipantID        string  `json:"participantId"`
	TaskCode             string  `json:"taskCode"`
	WindowStart          string  `json:"windowStart"`
	WindowEnd            string  `json:"windowEnd"`
	TimeWindowStart      string  `json:"timeWindowStart"`
	TimeWindowEnd        string  `json:"timeWindowEnd"`
	RequiredPreviousTask *string `json:"requiredPreviousTask"`
}

// AdmitTask POST /ledger/api/v1/tasks
func (h *LedgerHandler) AdmitTask(w http.ResponseWriter, r *http.Request) {
	var body admitTaskBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body: "+err.Error()))
		return
	}

	req := service.AdmitTaskRequest{
		WorkerID:      body.WorkerID,
		ParticipantID: body.ParticipantID,
		TaskCode:      body.TaskCode,
	}
	// 未显式传 workerId 时使用认证层注入的身份
	if strings.TrimSpace(req.WorkerID) == "" {
		req.WorkerID = r.Header.Get("X-User-Id")
	}
	if body.RequiredPreviousTask != nil {
		req.RequiredPreviousTask = *body.RequiredPreviousTask
	}

	var err error
	if req.WindowStart, err = h.parseWindow("windowStart", firstNonEmpty(body.WindowStart, body.TimeWindowStart)); err != nil {
		h.writeError(w, err, "Failed to admit task")
		return
	}
	if req.WindowEnd, err = h.parseWindow("windowEnd", firstNonEmpty(body.WindowEnd, body.TimeWindowEnd)); err != nil {
		h.writeError(w, err, "Failed to admit task")
		return
	}

	res, err := h.admission.Admit(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "Failed to admit task")
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// Seed POST /ledger/api/v1/test/seed
func (h *LedgerHandler) Seed(w http.ResponseWriter, r *http.Request) {
	res, err := h.seed.Seed(r.Context(), r.Header.Get("X-User-Id"))
	if err != nil {
		h.writeError(w, err, "Failed to seed ledger")
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// parseWindow 空值交给服务层报告缺失字段
func (h *LedgerHandler) parseWindow(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return service.ParseTimestamp(field, value, h.loc)
}

// writeError 按错误类别映射 HTTP 状态码
func (h *LedgerHandler) writeError(w http.ResponseWriter, err error, generic string) {
	var (
		inputErr      *service.InputError
		validationErr *service.ValidationError
		transientErr  *service.TransientError
	)
	switch {
	case errors.As(err, &inputErr):
		writeJSON(w, http.StatusBadRequest, Fail(inputErr.Message))
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, FailWithErrors("Validation failed", validationErr.Violations))
	case errors.As(err, &transientErr):
		res := FailWithErrors(transientErr.Message, []string{transientErr.Message})
		res.Type = "warning"
		writeJSON(w, http.StatusServiceUnavailable, res)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, FailWithErrors(generic, []string{"request cancelled before completion"}))
	default:
		h.logger.Error(generic, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(generic))
	}
}

func replayRequestFromQuery(r *http.Request) service.ReplayRequest {
	q := r.URL.Query()
	return service.ReplayRequest{
		ParticipantID: q.Get("participantId"),
		Start:         q.Get("start"),
		End:           q.Get("end"),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

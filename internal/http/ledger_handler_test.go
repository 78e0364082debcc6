package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/repository"
	"wisefido-ledger/internal/service"
	"wisefido-ledger/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var handlerNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type ledgerFixture struct {
	store  *repository.MemoryEventStore
	faults *service.FaultInjector
	router *Router
}

func newLedgerFixture(t *testing.T, withSeed bool) *ledgerFixture {
	t.Helper()
	store := repository.NewMemoryEventStore()
	require.NoError(t, store.CreateParticipant(context.Background(), &domain.Participant{ID: "p1", Name: "P1", CreatedAt: handlerNow.AddDate(-5, 0, 0)}))

	logger := zap.NewNop()
	faults := &service.FaultInjector{Rate: 0}
	admission := service.NewTaskAdmissionService(store, faults, nil, time.UTC, logger).
		WithClock(func() time.Time { return handlerNow })

	var seed Seeder
	if withSeed {
		seed = service.NewSeedService(store, logger)
	}
	h := NewLedgerHandler(
		service.NewConditionService(store, 20, time.UTC, logger),
		service.NewReplayService(store, time.UTC, logger),
		admission,
		seed,
		time.UTC,
		logger,
	)
	router := NewRouter(logger)
	router.RegisterLedgerRoutes(h)
	return &ledgerFixture{store: store, faults: faults, router: router}
}

func (f *ledgerFixture) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Errors  []string        `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func taskBody(task string, prev any) map[string]any {
	return map[string]any{
		"workerId":             "worker-7",
		"participantId":        "p1",
		"taskCode":             task,
		"windowStart":          handlerNow.Add(-time.Minute).Format(time.RFC3339),
		"windowEnd":            handlerNow.Add(time.Minute).Format(time.RFC3339),
		"requiredPreviousTask": prev,
	}
}

func TestHealth(t *testing.T) {
	f := newLedgerFixture(t, false)
	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, decode(t, rec).Code)
}

func TestGetState_Baseline(t *testing.T) {
	f := newLedgerFixture(t, false)

	rec := f.do(t, http.MethodGet, "/ledger/api/v1/state", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.ConditionSnapshot
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &snap))
	assert.Equal(t, "p1", snap.ParticipantID)
	assert.Equal(t, domain.ConditionStable, snap.Condition)
	assert.NotNil(t, snap.Insights)
}

func TestGetState_MethodNotAllowed(t *testing.T) {
	f := newLedgerFixture(t, false)
	rec := f.do(t, http.MethodPost, "/ledger/api/v1/state", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetStateSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer c.Close()
	kv := store.NewRedisKV(c)

	logger := zap.NewNop()
	mem := repository.NewMemoryEventStore()
	h := NewLedgerHandler(
		service.NewConditionService(mem, 20, time.UTC, logger),
		service.NewReplayService(mem, time.UTC, logger),
		service.NewTaskAdmissionService(mem, nil, nil, time.UTC, logger),
		nil, time.UTC, logger,
	).WithSnapshots(kv)
	f := &ledgerFixture{store: mem, router: NewRouter(logger)}
	f.router.RegisterLedgerRoutes(h)

	rec := f.do(t, http.MethodGet, "/ledger/api/v1/state/snapshot", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/ledger/api/v1/state/snapshot?participantId=p1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	snap := domain.EmptySnapshot()
	snap.ParticipantID = "p1"
	snap.Condition = domain.ConditionCritical
	require.NoError(t, store.SaveCondition(context.Background(), kv, snap, time.Minute))

	rec = f.do(t, http.MethodGet, "/ledger/api/v1/state/snapshot?participantId=p1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.ConditionSnapshot
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &got))
	assert.Equal(t, domain.ConditionCritical, got.Condition)
}

func TestGetStateSnapshot_NotRegisteredWithoutKV(t *testing.T) {
	f := newLedgerFixture(t, false)
	rec := f.do(t, http.MethodGet, "/ledger/api/v1/state/snapshot?participantId=p1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "404 page not found")
}

func TestGetReplay(t *testing.T) {
	f := newLedgerFixture(t, false)
	for _, m := range []int{20, 0, 10} {
		e := domain.NewEvent(string(rune('a'+m)), "p1", "w", handlerNow.Add(time.Duration(m)*time.Minute), domain.Note{Text: "n"})
		require.NoError(t, f.store.AppendEvent(context.Background(), e))
	}

	rec := f.do(t, http.MethodGet, "/ledger/api/v1/replay?participantId=p1&start=2026-03-01T09:30:00Z&end=2026-03-01T09:50:00Z", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Events []*domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &res))
	require.Len(t, res.Events, 3)
	assert.True(t, res.Events[0].OccurredAt.Equal(handlerNow))
	assert.True(t, res.Events[2].OccurredAt.Equal(handlerNow.Add(20*time.Minute)))
}

func TestGetReplay_InputErrors(t *testing.T) {
	f := newLedgerFixture(t, false)

	tests := []struct {
		name  string
		query string
		msg   string
	}{
		{"missing participant", "start=2026-03-01&end=2026-03-02", "participantId is required"},
		{"missing start", "participantId=p1&end=2026-03-02", "start is required"},
		{"malformed end", "participantId=p1&start=2026-03-01&end=tomorrow", "invalid end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/ledger/api/v1/replay?"+tt.query, nil, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec).Message, tt.msg)
		})
	}
}

func TestExportReplay(t *testing.T) {
	f := newLedgerFixture(t, false)
	require.NoError(t, f.store.AppendEvent(context.Background(),
		domain.NewEvent("e1", "p1", "w", handlerNow, domain.Observation{Metric: domain.MetricHeartRate, Value: 88, Unit: "bpm"})))
	require.NoError(t, f.store.AppendEvent(context.Background(),
		domain.NewEvent("e2", "p1", "w", handlerNow.Add(time.Minute), domain.Alert{RuleCode: "HR_HIGH", Severity: domain.SeverityCritical})))

	rec := f.do(t, http.MethodGet, "/ledger/api/v1/replay/export?participantId=p1&start=2026-03-01&end=2026-03-02", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "replay-p1-20260301.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(replaySheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ReplayExportHeader[0], rows[0][0])
	assert.Equal(t, "e1", rows[1][1])
	assert.Equal(t, "heart_rate", rows[1][4])
	assert.Equal(t, "88", rows[1][5])
	assert.Equal(t, "HR_HIGH", rows[2][9])
}

func TestAdmitTask_Success(t *testing.T) {
	f := newLedgerFixture(t, false)

	rec := f.do(t, http.MethodPost, "/ledger/api/v1/tasks", taskBody("MED_ADMIN_AM", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.AdmitTaskResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &res))
	assert.NotEmpty(t, res.EventID)

	n, err := f.store.CountEvents(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdmitTask_WorkerFromHeaderAndLegacyFields(t *testing.T) {
	f := newLedgerFixture(t, false)

	body := map[string]any{
		"participantId":   "p1",
		"taskCode":        "MED_ADMIN_AM",
		"timeWindowStart": handlerNow.Add(-time.Minute).Format(time.RFC3339),
		"timeWindowEnd":   handlerNow.Add(time.Minute).Format(time.RFC3339),
	}
	rec := f.do(t, http.MethodPost, "/ledger/api/v1/tasks", body, map[string]string{"X-User-Id": "user-42"})
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := f.store.ListRecentEvents(context.Background(), "p1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user-42", events[0].ActorID)
}

func TestAdmitTask_ValidationErrors(t *testing.T) {
	f := newLedgerFixture(t, false)

	body := taskBody("MED_ADMIN_PM", "MED_ADMIN_AM")
	body["workerId"] = ""
	rec := f.do(t, http.MethodPost, "/ledger/api/v1/tasks", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decode(t, rec)
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, []string{
		"Unassigned worker attempted action.",
		"Sequence violation: Required prior task [MED_ADMIN_AM] is incomplete.",
	}, env.Errors)

	n, err := f.store.CountEvents(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAdmitTask_TransientIs503(t *testing.T) {
	f := newLedgerFixture(t, false)
	f.faults.Rate = 1
	f.faults.Rand = func() float64 { return 0 }

	rec := f.do(t, http.MethodPost, "/ledger/api/v1/tasks", taskBody("MED_ADMIN_AM", nil), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{service.GatewayDropMessage}, decode(t, rec).Errors)

	n, err := f.store.CountEvents(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAdmitTask_BadInput(t *testing.T) {
	f := newLedgerFixture(t, false)

	req := httptest.NewRequest(http.MethodPost, "/ledger/api/v1/tasks", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := taskBody("A", nil)
	body["windowStart"] = "noon"
	rec = f.do(t, http.MethodPost, "/ledger/api/v1/tasks", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "invalid windowStart")

	body = taskBody("A", nil)
	delete(body, "windowEnd")
	rec = f.do(t, http.MethodPost, "/ledger/api/v1/tasks", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "windowEnd is required", decode(t, rec).Message)
}

func TestSeed_OnlyWhenEnabled(t *testing.T) {
	f := newLedgerFixture(t, false)
	rec := f.do(t, http.MethodPost, "/ledger/api/v1/test/seed", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f = newLedgerFixture(t, true)
	rec = f.do(t, http.MethodPost, "/ledger/api/v1/test/seed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.SeedResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &res))
	assert.NotEmpty(t, res.ParticipantID)

	rec = f.do(t, http.MethodGet, "/ledger/api/v1/state", nil, nil)
	var snap domain.ConditionSnapshot
	require.NoError(t, json.Unmarshal(decode(t, rec).Result, &snap))
	assert.Equal(t, res.ParticipantID, snap.ParticipantID)
	assert.Equal(t, domain.ConditionCritical, snap.Condition)
}

type failingReader struct{}

func (failingReader) Reconstruct(context.Context, string) (*domain.ConditionSnapshot, error) {
	return nil, errors.New("pq: connection refused")
}

func TestGetState_StoreFailureIsGeneric(t *testing.T) {
	h := NewLedgerHandler(failingReader{}, nil, nil, nil, time.UTC, zap.NewNop())
	router := NewRouter(zap.NewNop())
	router.RegisterLedgerRoutes(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/api/v1/state", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	env := decode(t, rec)
	assert.Equal(t, "Failed to reconstruct state", env.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

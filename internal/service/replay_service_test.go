package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wisefido-ledger/internal/domain"
	"wisefido-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReplayService_RequiredFields(t *testing.T) {
	store := new(mockEventStore)
	svc := NewReplayService(store, time.UTC, zap.NewNop())

	tests := []struct {
		name  string
		req   ReplayRequest
		field string
	}{
		{"missing participant", ReplayRequest{Start: "2026-03-01T00:00:00Z", End: "2026-03-02T00:00:00Z"}, "participantId"},
		{"missing start", ReplayRequest{ParticipantID: "p1", End: "2026-03-02T00:00:00Z"}, "start"},
		{"missing end", ReplayRequest{ParticipantID: "p1", Start: "2026-03-01T00:00:00Z"}, "end"},
		{"malformed start", ReplayRequest{ParticipantID: "p1", Start: "yesterday", End: "2026-03-02T00:00:00Z"}, "start"},
		{"malformed end", ReplayRequest{ParticipantID: "p1", Start: "2026-03-01T00:00:00Z", End: "2026-13-45"}, "end"},
		{"start after end", ReplayRequest{ParticipantID: "p1", Start: "2026-03-02T00:00:00Z", End: "2026-03-01T00:00:00Z"}, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Replay(context.Background(), tt.req)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
	// 输入错误不会访问存储
	store.AssertNotCalled(t, "ListEventsInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReplayService_AscendingInclusive(t *testing.T) {
	store := repository.NewMemoryEventStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	newParticipant(t, store, "p1", base)

	// 乱序追加
	for _, m := range []int{30, 0, 45, 15, 60} {
		appendEvent(t, store, "p1", base.Add(time.Duration(m)*time.Minute), domain.Observation{Metric: domain.MetricSpO2, Value: float64(90 + m/15)})
	}

	svc := NewReplayService(store, time.UTC, zap.NewNop())
	res, err := svc.Replay(context.Background(), ReplayRequest{
		ParticipantID: "p1",
		Start:         "2026-03-01T08:00:00Z",
		End:           "2026-03-01T08:45:00Z",
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 4)
	for i := 1; i < len(res.Events); i++ {
		assert.False(t, res.Events[i].OccurredAt.Before(res.Events[i-1].OccurredAt))
	}
	assert.True(t, res.Events[0].OccurredAt.Equal(base))
	assert.True(t, res.Events[3].OccurredAt.Equal(base.Add(45*time.Minute)))
}

func TestReplayService_EmptyRangeIsEmptySlice(t *testing.T) {
	store := repository.NewMemoryEventStore()
	svc := NewReplayService(store, time.UTC, zap.NewNop())

	res, err := svc.Replay(context.Background(), ReplayRequest{ParticipantID: "nobody", Start: "2026-03-01", End: "2026-03-02"})
	require.NoError(t, err)
	assert.NotNil(t, res.Events)
	assert.Empty(t, res.Events)
}

func TestReplayService_StoreFailure(t *testing.T) {
	store := new(mockEventStore)
	store.On("ListEventsInRange", mock.Anything, "p1", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	svc := NewReplayService(store, time.UTC, zap.NewNop())
	_, err := svc.Replay(context.Background(), ReplayRequest{ParticipantID: "p1", Start: "2026-03-01", End: "2026-03-02"})
	require.Error(t, err)
	var inputErr *InputError
	assert.False(t, errors.As(err, &inputErr))
}

func TestParseTimestamp_Layouts(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)

	got, err := ParseTimestamp("start", "2026-03-01T08:00:00.123Z", loc)
	require.NoError(t, err)
	assert.Equal(t, 123*time.Millisecond, time.Duration(got.Nanosecond()))

	got, err = ParseTimestamp("start", "2026-03-01T08:00:00", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	got, err = ParseTimestamp("start", "2026-03-01", loc)
	require.NoError(t, err)
	assert.Equal(t, loc, got.Location())
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(v float64) func() float64 { return func() float64 { return v } }

func TestFaultInjector_Maybe(t *testing.T) {
	tests := []struct {
		name    string
		f       *FaultInjector
		wantErr bool
	}{
		{"nil injector", nil, false},
		{"disabled", &FaultInjector{Rate: 0, Rand: fixedRand(0)}, false},
		{"roll above rate", &FaultInjector{Rate: 0.2, Rand: fixedRand(0.5)}, false},
		{"roll at rate", &FaultInjector{Rate: 0.2, Rand: fixedRand(0.2)}, false},
		{"roll below rate", &FaultInjector{Rate: 0.2, Rand: fixedRand(0.1)}, true},
		{"always", &FaultInjector{Rate: 1, Rand: fixedRand(0.99)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.f.Maybe(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrTransient))
			assert.Equal(t, GatewayDropMessage, err.Error())
		})
	}
}

func TestFaultInjector_DelayHonoursContext(t *testing.T) {
	f := &FaultInjector{Rate: 1, Delay: time.Minute, Rand: fixedRand(0)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.Maybe(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFaultInjector_Delay(t *testing.T) {
	f := &FaultInjector{Rate: 1, Delay: 10 * time.Millisecond, Rand: fixedRand(0)}

	start := time.Now()
	err := f.Maybe(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestNewFaultInjector_RandInRange(t *testing.T) {
	f := NewFaultInjector(DefaultFaultRate, DefaultFaultDelay)
	for i := 0; i < 100; i++ {
		v := f.Rand()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

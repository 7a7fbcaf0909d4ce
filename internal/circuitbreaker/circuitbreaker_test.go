package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Timeout: time.Minute, Component: "weather_api"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := cb.Call(ctx, func() error { return errUpstream })
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		Component:        "geocoder",
		OnStateChange: func(component, from, to string) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, from+"->"+to)
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errUpstream })
	require.Equal(t, "open", cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Call(ctx, func() error { return nil }))
	assert.Equal(t, "closed", cb.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestCircuitBreaker_NilPassesThrough(t *testing.T) {
	var cb *CircuitBreaker
	called := false
	err := cb.Call(context.Background(), func() error { called = true; return nil })
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Call(ctx, func() error { t.Fatal("fn called with cancelled context"); return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

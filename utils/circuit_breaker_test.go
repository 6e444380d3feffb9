package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailurePropagates(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("broker down")

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	// A single failure is below the trip threshold.
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TripsOnFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("broker down")

	for i := 0; i < 20; i++ {
		_, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	ran := false
	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		ran = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestCircuitBreaker_StaysClosedOnMixedTraffic(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("broker down")

	// 40 requests at a 25% failure rate stay under the 50% trip ratio.
	for i := 0; i < 40; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			if i%4 == 0 {
				return nil, boom
			}
			return nil, nil
		})
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ContextCancelled(t *testing.T) {
	cb := NewCircuitBreaker("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		ran = true
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func() (interface{}, error) {
			panic("unexpected")
		})
	})
	assert.Equal(t, StateClosed, cb.State())
}

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errWrite = errors.New("write failed")

func failing(b *Breaker) error {
	return b.Execute(func() error { return errWrite })
}

func succeeding(b *Breaker) error {
	return b.Execute(func() error { return nil })
}

func trip(t *testing.T, b *Breaker) {
	t.Helper()
	for b.State() == StateClosed {
		require.Error(t, failing(b))
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New(Settings{})

	for i := 0; i < 20; i++ {
		require.NoError(t, succeeding(b))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerToleratesShortFailureBursts(t *testing.T) {
	b := New(Settings{})

	// Alternating outcomes never build a consecutive run.
	for i := 0; i < 20; i++ {
		assert.ErrorIs(t, failing(b), errWrite)
		require.NoError(t, succeeding(b))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAfterSustainedFailures(t *testing.T) {
	b := New(Settings{})

	for i := 0; i < defaultTripAfter; i++ {
		assert.ErrorIs(t, failing(b), errWrite, "failures pass through while closed")
	}
	assert.Equal(t, StateOpen, b.State())

	// Open state sheds load without invoking the operation.
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New(Settings{MaxRequests: 2, Timeout: 10 * time.Millisecond})
	trip(t, b)

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// The probe budget of consecutive successes closes the breaker.
	require.NoError(t, succeeding(b))
	require.NoError(t, succeeding(b))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := New(Settings{Timeout: 10 * time.Millisecond})
	trip(t, b)

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	assert.ErrorIs(t, failing(b), errWrite)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerLimitsProbesInHalfOpen(t *testing.T) {
	b := New(Settings{MaxRequests: 1, Timeout: 10 * time.Millisecond})
	trip(t, b)

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// Hold the single probe slot open, then ask for another.
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			<-release
			return nil
		})
	}()

	assert.Eventually(t, func() bool {
		return errors.Is(succeeding(b), ErrTooManyRequests)
	}, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-done)
}

func TestBreakerClosedWindowResetsCounts(t *testing.T) {
	b := New(Settings{Interval: 10 * time.Millisecond})

	// One failure short of tripping, then let the window roll over.
	for i := 0; i < defaultTripAfter-1; i++ {
		assert.ErrorIs(t, failing(b), errWrite)
	}
	time.Sleep(15 * time.Millisecond)

	assert.ErrorIs(t, failing(b), errWrite)
	assert.Equal(t, StateClosed, b.State(), "stale failures must not count toward the trip")
}

func TestBreakerReportsStateChanges(t *testing.T) {
	var transitions []string
	b := New(Settings{
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})

	trip(t, b)
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, succeeding(b))

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

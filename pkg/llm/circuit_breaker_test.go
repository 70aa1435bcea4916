package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, resetAfter time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{Threshold: threshold, ResetAfter: resetAfter})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_InitialState(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())

	allowed, err := cb.Allow()
	assert.True(t, allowed)
	assert.NoError(t, err)
}

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	allowed, err := cb.Allow()
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 1, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Second)
	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	clock.advance(11 * time.Second)

	allowed, err := cb.Allow()
	require.True(t, allowed)
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A second caller is rejected while the probe is in flight.
	allowed, err = cb.Allow()
	assert.False(t, allowed)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	t.Run("failed probe reopens", func(t *testing.T) {
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.State())
	})

	t.Run("successful probe closes", func(t *testing.T) {
		clock.advance(11 * time.Second)
		allowed, _ := cb.Allow()
		require.True(t, allowed)
		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.State())
		assert.Equal(t, 0, cb.ConsecutiveFailures())
	})
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(42).String())
}

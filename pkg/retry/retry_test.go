package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestTransportConfig(t *testing.T) {
	cfg := TransportConfig(1)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Less(t, cfg.MaxDelay, DefaultConfig().MaxDelay+time.Second)
}

func TestDo(t *testing.T) {
	t.Run("success on first call", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("success after retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient error")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("retries exhausted returns last error", func(t *testing.T) {
		expected := errors.New("persistent error")
		calls := 0
		err := Do(context.Background(), fastConfig(2), func() error {
			calls++
			return expected
		})
		assert.Equal(t, expected, err)
		// MaxRetries=2 means: initial attempt + 2 retries
		assert.Equal(t, 3, calls)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		err := Do(context.Background(), nil, func() error { return nil })
		assert.NoError(t, err)
	})
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "partial", errors.New("transient")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 2, calls)

	result, err = DoWithResult(context.Background(), fastConfig(1), func() (string, error) {
		return "last", errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, "last", result, "last result is kept on error")
}

type declaredErr struct{ retryable bool }

func (e declaredErr) Error() string     { return fmt.Sprintf("declared retryable=%v", e.retryable) }
func (e declaredErr) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"http 503", errors.New("status 503 service unavailable"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"overloaded", errors.New("overloaded_error: Overloaded"), true},
		{"syntax error", errors.New(`syntax error at or near "SELEC"`), false},
		{"auth", errors.New("invalid api key"), false},
		{"context canceled", context.Canceled, false},
		{"deadline wrapped", fmt.Errorf("oracle call: %w", context.DeadlineExceeded), false},
		{"declares retryable", declaredErr{retryable: true}, true},
		{"declares permanent even with 503 text", fmt.Errorf("wrapped 503: %w", declaredErr{retryable: false}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable(t *testing.T) {
	t.Run("permanent error returns immediately", func(t *testing.T) {
		expected := errors.New("permission denied")
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			calls++
			return expected
		})
		assert.Equal(t, expected, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient error is retried", func(t *testing.T) {
		calls := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("repeated same error type escalates", func(t *testing.T) {
		cfg := fastConfig(10)
		cfg.MaxSameErrorType = 2
		calls := 0
		err := DoIfRetryable(context.Background(), cfg, func() error {
			calls++
			return errors.New("HTTP 503")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "repeated error")
		assert.Equal(t, 2, calls)
	})
}

func TestDoIfRetryableWithResult(t *testing.T) {
	calls := 0
	result, err := DoIfRetryableWithResult(context.Background(), fastConfig(2), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("i/o timeout")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, calls)
}

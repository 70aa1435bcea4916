package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newGuarded(inner Client, cfg GuardConfig) *GuardedClient {
	g := NewGuardedClient(inner, cfg, zap.NewNop())
	g.retryCfg.InitialDelay = time.Millisecond
	g.retryCfg.MaxDelay = 2 * time.Millisecond
	return g
}

func TestGuardedClient_PassesThrough(t *testing.T) {
	mock := NewMockLLMClientWithResponses(`{"ok":true}`)
	g := newGuarded(mock, GuardConfig{Breaker: DefaultCircuitBreakerConfig()})

	result, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, result.Content)
	assert.Equal(t, 1, mock.GenerateResponseCalls())
	assert.Equal(t, "mock-model", g.GetModel())
}

func TestGuardedClient_RetriesTransientErrors(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64, bool) (*GenerateResponseResult, error) {
		if mock.GenerateResponseCalls() == 1 {
			return nil, NewError(ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
		}
		return &GenerateResponseResult{Content: "ok"}, nil
	}
	g := newGuarded(mock, GuardConfig{TransportRetries: 2, Breaker: DefaultCircuitBreakerConfig()})

	result, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 2, mock.GenerateResponseCalls())
	assert.Equal(t, CircuitClosed, g.BreakerState())
}

func TestGuardedClient_DoesNotRetryPermanentErrors(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64, bool) (*GenerateResponseResult, error) {
		return nil, errors.New("status code: 401, unauthorized")
	}
	g := newGuarded(mock, GuardConfig{TransportRetries: 3, Breaker: DefaultCircuitBreakerConfig()})

	_, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	assert.Equal(t, 1, mock.GenerateResponseCalls())
}

func TestGuardedClient_CircuitOpensAndFailsFast(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(context.Context, string, string, float64, bool) (*GenerateResponseResult, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	g := newGuarded(mock, GuardConfig{
		TransportRetries: 0,
		Breaker:          CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour},
	})

	for i := 0; i < 2; i++ {
		_, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
		require.Error(t, err)
	}
	require.Equal(t, CircuitOpen, g.BreakerState())

	_, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, mock.GenerateResponseCalls(), "open circuit must not reach the provider")
}

func TestGuardedClient_RateLimitWaitRespectsDeadline(t *testing.T) {
	mock := NewMockLLMClientWithResponses("ok")
	g := newGuarded(mock, GuardConfig{
		RequestsPerSecond: 0.001,
		Burst:             1,
		Breaker:           DefaultCircuitBreakerConfig(),
	})

	_, err := g.GenerateResponse(context.Background(), "p", "s", 0, false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.GenerateResponse(ctx, "p", "s", 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 1, mock.GenerateResponseCalls())
}

func TestGuardedClient_CallerDeadlineIsTimeout(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, _ string, _ string, _ float64, _ bool) (*GenerateResponseResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	g := newGuarded(mock, GuardConfig{TransportRetries: 2, Breaker: DefaultCircuitBreakerConfig()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.GenerateResponse(ctx, "p", "s", 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Equal(t, 1, mock.GenerateResponseCalls())
}

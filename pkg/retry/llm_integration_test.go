package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/retry"
)

func TestIsRetryable_WithLLMError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable endpoint error", llm.NewError(llm.ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503")), true},
		{"retryable rate limit", llm.NewError(llm.ErrorTypeRateLimit, "rate limited", true, errors.New("HTTP 429")), true},
		{"auth error", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401")), false},
		{"wrapped model error", fmt.Errorf("oracle: %w", llm.NewError(llm.ErrorTypeModel, "model not found", false, errors.New("model does not exist"))), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, retry.IsRetryable(tt.err))
		})
	}
}

func TestDoIfRetryable_WithLLMError(t *testing.T) {
	cfg := &retry.Config{MaxRetries: 3, InitialDelay: 1, MaxDelay: 10, Multiplier: 2.0}

	calls := 0
	err := retry.DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return llm.NewError(llm.ErrorTypeEndpoint, "server error", true, errors.New("HTTP 503"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	expected := llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401"))
	err = retry.DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return expected
	})
	assert.Equal(t, expected, err)
	assert.Equal(t, 1, calls)
}

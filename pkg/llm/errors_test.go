package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "minimal",
			err:      &Error{Type: ErrorTypeUnknown, Message: "llm error"},
			expected: "unknown llm error",
		},
		{
			name:     "status and model",
			err:      &Error{Type: ErrorTypeEndpoint, Message: "server error", StatusCode: 503, Model: "gpt-4o"},
			expected: "endpoint HTTP 503 model=gpt-4o server error",
		},
		{
			name:     "with cause",
			err:      &Error{Type: ErrorTypeAuth, Message: "authentication failed", Cause: errors.New("bad key")},
			expected: "auth authentication failed: bad key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrorTypeEndpoint, "server error", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}

func TestClassifyError_Messages(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errType   ErrorType
		retryable bool
		status    int
	}{
		{"unauthorized", errors.New("status code: 401, unauthorized"), ErrorTypeAuth, false, 401},
		{"invalid api key", errors.New("Invalid API key provided"), ErrorTypeAuth, false, 0},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"endpoint 404", errors.New("status code: 404, page missing"), ErrorTypeEndpoint, false, 404},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8000: connection refused"), ErrorTypeEndpoint, true, 0},
		{"transport timeout", errors.New("net/http: request canceled (Client.Timeout exceeded)"), ErrorTypeTimeout, true, 0},
		{"deadline exceeded", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeTimeout, false, 0},
		{"rate limited", errors.New("status code: 429, too many"), ErrorTypeRateLimit, true, 429},
		{"server error", errors.New("status code: 503, unavailable"), ErrorTypeEndpoint, true, 503},
		{"overloaded", errors.New("provider overloaded"), ErrorTypeEndpoint, true, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.errType, classified.Type)
			assert.Equal(t, tt.retryable, classified.Retryable)
			assert.Equal(t, tt.status, classified.StatusCode)
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassifyError_TypedProviderErrors(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}
	classified := ClassifyError(fmt.Errorf("create completion: %w", apiErr))
	assert.Equal(t, ErrorTypeRateLimit, classified.Type)
	assert.Equal(t, 429, classified.StatusCode)
	assert.True(t, classified.Retryable)

	reqErr := &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}
	classified = ClassifyError(reqErr)
	assert.Equal(t, ErrorTypeEndpoint, classified.Type)
	assert.True(t, classified.Retryable)

	authErr := &openai.APIError{HTTPStatusCode: 401, Message: "no"}
	classified = ClassifyError(authErr)
	assert.Equal(t, ErrorTypeAuth, classified.Type)
	assert.False(t, classified.Retryable)
}

func TestClassifyError_PreservesExistingError(t *testing.T) {
	original := NewError(ErrorTypeCircuitOpen, "oracle temporarily disabled", false, ErrCircuitOpen)
	assert.Same(t, original, ClassifyError(fmt.Errorf("outer: %w", original)))
	assert.Nil(t, ClassifyError(nil))
}

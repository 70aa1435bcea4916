package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorType indicates what part of the oracle setup or call failed.
type ErrorType string

const (
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeEmpty       ErrorType = "empty_response"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// ErrCircuitOpen is the cause of errors returned while the circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // HTTP status code if known
	Model      string // model name if known
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError maps a provider or transport error to a structured Error.
// Typed provider errors are inspected first; anything else is classified
// by its message.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if status := statusCode(err); status > 0 {
		if classified := classifyStatus(status, err); classified != nil {
			return classified
		}
	}

	var anthropicErr *anthropic.APIError
	if errors.As(err, &anthropicErr) {
		switch string(anthropicErr.Type) {
		case "rate_limit_error":
			return NewError(ErrorTypeRateLimit, "rate limited", true, err)
		case "overloaded_error", "api_error":
			return NewError(ErrorTypeEndpoint, "provider overloaded", true, err)
		case "authentication_error", "permission_error":
			return NewError(ErrorTypeAuth, "authentication failed", false, err)
		case "not_found_error":
			return NewError(ErrorTypeModel, "model not found", false, err)
		}
	}

	return classifyMessage(err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthropicReqErr *anthropic.RequestError
	if errors.As(err, &anthropicReqErr) {
		return anthropicReqErr.StatusCode
	}
	return 0
}

func classifyStatus(status int, err error) *Error {
	var classified *Error
	switch {
	case status == 401 || status == 403:
		classified = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case status == 404:
		classified = NewError(ErrorTypeModel, "model or endpoint not found", false, err)
	case status == 408:
		classified = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case status == 429:
		classified = NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case status >= 500:
		classified = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		return nil
	}
	classified.StatusCode = status
	return classified
}

func classifyMessage(err error) *Error {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	status := 0
	for _, code := range []int{401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			status = code
			break
		}
	}

	var classified *Error
	switch {
	case strings.Contains(lower, "deadline exceeded"), strings.Contains(lower, "context canceled"):
		// The caller's budget is spent; retrying inside it cannot succeed.
		classified = NewError(ErrorTypeTimeout, "request timeout", false, err)
	case status == 401 || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		classified = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		classified = NewError(ErrorTypeModel, "model not found", false, err)
	case status == 404:
		classified = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "connection reset"):
		classified = NewError(ErrorTypeEndpoint, "connection failed", true, err)
	case strings.Contains(lower, "timeout"):
		classified = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case status == 429 || strings.Contains(lower, "rate limit"):
		classified = NewError(ErrorTypeRateLimit, "rate limited", true, err)
	case status >= 500 || strings.Contains(lower, "overloaded"):
		classified = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		classified = NewError(ErrorTypeUnknown, "llm error", false, err)
	}
	classified.StatusCode = status
	return classified
}

// IsRetryable returns true if err carries a retryable LLM error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

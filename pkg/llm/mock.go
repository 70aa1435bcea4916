package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing oracle behavior.
// Set GenerateResponseFunc to control responses. Safe for concurrent use.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns an empty result and nil error.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error)

	Model    string
	Endpoint string

	mu      sync.Mutex
	calls   int
	prompts []string
}

// NewMockLLMClient creates a new mock with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// NewMockLLMClientWithResponses returns a mock that replies with the given
// contents in order, repeating the last one once they run out.
func NewMockLLMClientWithResponses(contents ...string) *MockLLMClient {
	m := NewMockLLMClient()
	m.GenerateResponseFunc = func(context.Context, string, string, float64, bool) (*GenerateResponseResult, error) {
		idx := m.GenerateResponseCalls() - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		if idx < 0 {
			return &GenerateResponseResult{}, nil
		}
		return &GenerateResponseResult{Content: contents[idx]}, nil
	}
	return m
}

// GenerateResponse implements Client.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	fn := m.GenerateResponseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, systemMessage, temperature, thinking)
	}
	return &GenerateResponseResult{}, nil
}

// GenerateResponseCalls returns how many times GenerateResponse was invoked.
func (m *MockLLMClient) GenerateResponseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the prompts received so far.
func (m *MockLLMClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
	m.prompts = nil
}

var _ Client = (*MockLLMClient)(nil)

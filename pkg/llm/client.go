// Package llm provides the oracle transport: chat clients for OpenAI-compatible
// and Anthropic endpoints plus rate limiting and circuit breaking around them.
package llm

import (
	"context"
)

// Client is the chat completion surface the plan oracle depends on.
type Client interface {
	// GenerateResponse sends one system + user exchange and returns the reply.
	// thinking asks models that support it to reason before answering.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// GenerateResponseResult holds a completion and its token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider  string // "openai" or "anthropic"
	Endpoint  string // Base URL, e.g., "https://api.openai.com/v1"
	Model     string
	APIKey    string // Optional for local OpenAI-compatible endpoints
	MaxTokens int
}

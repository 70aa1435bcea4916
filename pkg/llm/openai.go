package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient talks to OpenAI-compatible chat completion endpoints
// (OpenAI, vLLM, Ollama, LiteLLM and similar).
type OpenAIClient struct {
	client    *openai.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	clientConfig.HTTPClient = &http.Client{Transport: &requestIDTransport{base: http.DefaultTransport}}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse implements Client. The thinking flag is passed through
// chat_template_kwargs for vLLM/Qwen style models that support it.
func (c *OpenAIClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature),
		zap.Bool("thinking", thinking))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   c.maxTokens,
		ChatTemplateKwargs: map[string]any{
			"enable_thinking": thinking,
		},
	})
	if err != nil {
		c.logger.Warn("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", true, nil)
	}

	c.logger.Debug("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (c *OpenAIClient) GetModel() string    { return c.model }
func (c *OpenAIClient) GetEndpoint() string { return c.endpoint }

var _ Client = (*OpenAIClient)(nil)

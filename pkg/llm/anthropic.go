package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicMaxTokens = 2000

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicClient creates a new Anthropic client. An empty endpoint uses
// the library default.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for anthropic")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Transport: &requestIDTransport{base: http.DefaultTransport}}),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: maxTokens,
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse implements Client. Anthropic has no thinking toggle on
// this path, so the flag is ignored.
func (c *AnthropicClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	_ bool,
) (*GenerateResponseResult, error) {
	temp := float32(temperature)
	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		MaxTokens:   c.maxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.logger.Warn("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	content := extractText(resp)
	if content == "" {
		return nil, NewError(ErrorTypeEmpty, "no text content in response", true, nil)
	}

	c.logger.Debug("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func extractText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}

func (c *AnthropicClient) GetModel() string    { return c.model }
func (c *AnthropicClient) GetEndpoint() string { return c.endpoint }

var _ Client = (*AnthropicClient)(nil)

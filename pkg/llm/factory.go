package llm

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClient creates the provider client named by cfg.Provider, wrapped in a
// GuardedClient.
func NewClient(cfg *Config, guard GuardConfig, logger *zap.Logger) (*GuardedClient, error) {
	var (
		inner Client
		err   error
	)

	switch cfg.Provider {
	case ProviderOpenAI, "":
		inner, err = NewOpenAIClient(cfg, logger)
	case ProviderAnthropic:
		inner, err = NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	logger.Info("Oracle client configured",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("endpoint", inner.GetEndpoint()))

	return NewGuardedClient(inner, guard, logger), nil
}

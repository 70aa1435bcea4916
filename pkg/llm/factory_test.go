package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai", Config{Provider: ProviderOpenAI, Endpoint: "http://localhost:8000/v1", Model: "m"}, false},
		{"default provider is openai", Config{Endpoint: "http://localhost:8000/v1", Model: "m"}, false},
		{"anthropic", Config{Provider: ProviderAnthropic, Model: "claude", APIKey: "k"}, false},
		{"anthropic without key", Config{Provider: ProviderAnthropic, Model: "claude"}, true},
		{"unknown provider", Config{Provider: "bedrock", Model: "m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(&tt.cfg, GuardConfig{}, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Model, client.GetModel())
			assert.Equal(t, CircuitClosed, client.BreakerState())
		})
	}
}

package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-ask/pkg/retry"
)

// GuardConfig configures the protections placed in front of a provider client.
type GuardConfig struct {
	// RequestsPerSecond caps oracle calls process-wide; 0 disables the limit.
	RequestsPerSecond float64
	Burst             int
	// TransportRetries retries transient provider errors within one call.
	TransportRetries int
	Breaker          CircuitBreakerConfig
}

// GuardedClient wraps a Client with a rate limiter, transient-error retries
// and a circuit breaker. Errors it returns are always *Error.
type GuardedClient struct {
	inner    Client
	limiter  *rate.Limiter
	breaker  *CircuitBreaker
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewGuardedClient wraps inner with the protections described by cfg.
func NewGuardedClient(inner Client, cfg GuardConfig, logger *zap.Logger) *GuardedClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &GuardedClient{
		inner:    inner,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  NewCircuitBreaker(cfg.Breaker),
		retryCfg: retry.TransportConfig(cfg.TransportRetries),
		logger:   logger.Named("llm-guard"),
	}
}

// GenerateResponse implements Client.
func (g *GuardedClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	attempt := 0
	result, err := retry.DoIfRetryableWithResult(ctx, g.retryCfg, func() (*GenerateResponseResult, error) {
		attempt++
		if attempt > 1 {
			g.logger.Debug("Retrying oracle call", zap.Int("attempt", attempt))
		}
		return g.call(ctx, prompt, systemMessage, temperature, thinking)
	})
	if err != nil {
		return nil, ClassifyError(err)
	}
	return result, nil
}

func (g *GuardedClient) call(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, NewError(ErrorTypeTimeout, "rate limiter wait exceeds deadline", false, err)
	}

	if ok, err := g.breaker.Allow(); !ok {
		return nil, NewError(ErrorTypeCircuitOpen, "oracle temporarily disabled", false, err)
	}

	start := time.Now()
	result, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, thinking)
	if err != nil {
		g.breaker.RecordFailure()
		classified := ClassifyError(err)
		if ctx.Err() != nil {
			classified = NewError(ErrorTypeTimeout, "oracle call exceeded deadline", false, err)
		}
		g.logger.Warn("Oracle call failed",
			zap.String("error_type", string(classified.Type)),
			zap.Bool("retryable", classified.Retryable),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("breaker_state", g.breaker.State().String()))
		return nil, classified
	}

	g.breaker.RecordSuccess()
	return result, nil
}

// BreakerState exposes the circuit state for health reporting.
func (g *GuardedClient) BreakerState() CircuitState {
	return g.breaker.State()
}

func (g *GuardedClient) GetModel() string    { return g.inner.GetModel() }
func (g *GuardedClient) GetEndpoint() string { return g.inner.GetEndpoint() }

var _ Client = (*GuardedClient)(nil)

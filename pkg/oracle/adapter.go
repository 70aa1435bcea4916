package oracle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Config controls oracle calls.
type Config struct {
	Prompt      PromptOptions
	Temperature float64
	Timeout     time.Duration
}

// Adapter asks an LLM for a Plan.
type Adapter struct {
	client  llm.Client
	catalog *Catalog
	cfg     Config
	logger  *zap.Logger
}

// NewAdapter creates an oracle adapter over client.
func NewAdapter(client llm.Client, catalog *Catalog, cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:  client,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.Named("oracle"),
	}
}

// Catalog returns the operation allow-list the adapter advertises.
func (a *Adapter) Catalog() *Catalog {
	return a.catalog
}

// Plan builds the prompt, calls the LLM and parses its reply. Errors are
// *models.ClassifiedError of kind OracleUnavailable, OracleUnparseable or
// Timeout.
func (a *Adapter) Plan(ctx context.Context, query string, schemas models.SchemaSet) (*models.Plan, error) {
	prompt := BuildPrompt(query, schemas, a.catalog, a.cfg.Prompt)

	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := a.client.GenerateResponse(callCtx, prompt, systemMessage, a.cfg.Temperature, false)
	if err != nil {
		classified := classifyCallError(callCtx, err)
		a.logger.Warn("Oracle call failed",
			zap.String("kind", string(classified.Kind)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, classified
	}

	plan, err := ParsePlan(result.Content, a.catalog)
	if err != nil {
		a.logger.Warn("Oracle reply rejected",
			zap.Error(err),
			zap.String("reply", logging.TruncateString(result.Content, logging.MaxQueryLogLength)))
		return nil, err
	}

	a.logger.Debug("Oracle produced plan",
		zap.String("variant", string(plan.Variant())),
		zap.Strings("entity_types", plan.EntityTypes()),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))
	return plan, nil
}

func classifyCallError(ctx context.Context, err error) *models.ClassifiedError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		llm.GetErrorType(err) == llm.ErrorTypeTimeout {
		return models.NewClassifiedError(models.ErrorKindTimeout, "oracle call timed out", err)
	}
	return models.NewClassifiedError(models.ErrorKindOracleUnavailable, "oracle call failed", err)
}

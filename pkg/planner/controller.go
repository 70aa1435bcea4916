package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// DefaultMaxRetries bounds corrections per request: three attempts in total.
const DefaultMaxRetries = 2

// Executor runs a validated plan against the record store.
type Executor interface {
	Invoke(ctx context.Context, call *models.DirectCall) (*models.ResultSet, error)
	RunReadOnly(ctx context.Context, query string, dialect sql.Dialect) (*models.ResultSet, error)
}

// StoreExecutor executes plans on a recordstore.Set: direct calls on the
// primary store, generated queries on the runner for their dialect.
type StoreExecutor struct {
	stores *recordstore.Set
}

// NewStoreExecutor creates an executor over stores.
func NewStoreExecutor(stores *recordstore.Set) *StoreExecutor {
	return &StoreExecutor{stores: stores}
}

func (e *StoreExecutor) Invoke(ctx context.Context, call *models.DirectCall) (*models.ResultSet, error) {
	return e.stores.Primary().Invoke(ctx, call)
}

func (e *StoreExecutor) RunReadOnly(ctx context.Context, query string, dialect sql.Dialect) (*models.ResultSet, error) {
	runner, ok := e.stores.Runner(dialect)
	if !ok {
		return nil, &recordstore.ExecError{
			Kind:  models.ErrorKindPlanRejected,
			Cause: fmt.Errorf("no read-only runner for dialect %q", dialect),
		}
	}
	return runner.RunReadOnly(ctx, query)
}

// ControllerConfig configures the retry controller.
type ControllerConfig struct {
	MaxRetries       int
	ExecutionTimeout time.Duration
}

// Controller drives one plan through validate, execute and, for
// correctable failures, correct-and-retry until a terminal outcome.
type Controller struct {
	validator *Validator
	corrector *Corrector
	executor  Executor
	cfg       ControllerConfig
	logger    *zap.Logger
}

// NewController creates a controller. A negative MaxRetries disables
// retries; zero values elsewhere take defaults.
func NewController(validator *Validator, corrector *Corrector, executor Executor, cfg ControllerConfig, logger *zap.Logger) *Controller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 30 * time.Second
	}
	return &Controller{
		validator: validator,
		corrector: corrector,
		executor:  executor,
		cfg:       cfg,
		logger:    logger.Named("controller"),
	}
}

// Run executes plan and returns the terminal outcome with the retry state
// that led to it. It never runs a plan that failed validation and makes at
// most MaxRetries+1 attempts.
func (c *Controller) Run(ctx context.Context, plan *models.Plan, schemas models.SchemaSet) (*models.ExecutionOutcome, *models.RetryState) {
	state := &models.RetryState{Plan: plan.Clone()}

	// Deterministic repairs before the first validation.
	if state.Plan.Variant() == models.PlanVariantGeneratedQuery {
		corrected, applied := c.corrector.Correct(state.Plan.GeneratedQuery, schemas, nil)
		if len(applied) > 0 {
			state.Plan.GeneratedQuery = corrected
			state.History = append(state.History, models.Correction{Description: strings.Join(applied, "; ")})
		}
	}

	for {
		state.Attempt++

		if err := ctx.Err(); err != nil {
			return failed(Classify(err)), state
		}

		verdict, err := c.validator.Validate(ctx, state.Plan, schemas)
		if err != nil {
			return failed(classifyValidationError(err)), state
		}
		if !verdict.Valid {
			ce := models.NewClassifiedError(models.ErrorKindPlanRejected, verdict.Reason, nil)
			ce.Rule = verdict.Rule
			c.logger.Debug("Plan rejected",
				zap.Int("attempt", state.Attempt),
				zap.String("rule", verdict.Rule),
				zap.String("reason", verdict.Reason))
			return failed(ce), state
		}

		result, err := c.execute(ctx, state.Plan)
		if err == nil {
			return &models.ExecutionOutcome{Success: true, Result: result}, state
		}

		ce := Classify(err)
		c.logger.Debug("Execution failed",
			zap.Int("attempt", state.Attempt),
			zap.String("error_kind", string(ce.Kind)),
			zap.String("error", logging.SanitizeError(err)))

		if !retryable(ce, state.Plan.Variant()) || state.Attempt > c.cfg.MaxRetries {
			return failed(ce), state
		}

		corrected, applied := c.correct(state.Plan, schemas, ce)
		if len(applied) == 0 {
			// The same plan would fail the same way.
			return failed(ce), state
		}
		state.Plan = corrected
		state.History = append(state.History, models.Correction{Error: ce, Description: strings.Join(applied, "; ")})
		c.logger.Info("Retrying corrected plan",
			zap.Int("attempt", state.Attempt+1),
			zap.String("error_kind", string(ce.Kind)),
			zap.Strings("corrections", applied))
	}
}

func (c *Controller) execute(ctx context.Context, plan *models.Plan) (*models.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ExecutionTimeout)
	defer cancel()

	if plan.Variant() == models.PlanVariantDirectCall {
		return c.executor.Invoke(ctx, plan.DirectCall)
	}
	d, err := sql.ParseDialect(plan.GeneratedQuery.Dialect)
	if err != nil {
		return nil, &recordstore.ExecError{Kind: models.ErrorKindPlanRejected, Cause: err}
	}
	return c.executor.RunReadOnly(ctx, plan.GeneratedQuery.Query, d)
}

func (c *Controller) correct(plan *models.Plan, schemas models.SchemaSet, hint *models.ClassifiedError) (*models.Plan, []string) {
	out := plan.Clone()
	var applied []string
	switch plan.Variant() {
	case models.PlanVariantDirectCall:
		out.DirectCall, applied = c.corrector.CorrectDirectCall(plan.DirectCall, hint)
	case models.PlanVariantGeneratedQuery:
		out.GeneratedQuery, applied = c.corrector.Correct(plan.GeneratedQuery, schemas, hint)
	}
	return out, applied
}

// retryable reports whether a failure may be corrected and retried. Only
// unknown fields are repairable in direct calls.
func retryable(ce *models.ClassifiedError, variant models.PlanVariant) bool {
	if !ce.Kind.Correctable() {
		return false
	}
	if variant == models.PlanVariantDirectCall {
		return ce.Kind == models.ErrorKindUnknownField
	}
	return variant == models.PlanVariantGeneratedQuery
}

func classifyValidationError(err error) *models.ClassifiedError {
	ce := Classify(err)
	if ce.Kind != models.ErrorKindInternal {
		return ce
	}
	out := *ce
	out.Kind = models.ErrorKindSchemaUnavailable
	return &out
}

func failed(ce *models.ClassifiedError) *models.ExecutionOutcome {
	return &models.ExecutionOutcome{Success: false, Error: ce}
}

package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/llm"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Detector maps a query to candidate entity types.
type Detector interface {
	Detect(query string) models.DetectionResult
}

// SchemaProvider supplies schema context for detected entity types.
type SchemaProvider interface {
	GetSchemas(ctx context.Context, entityTypes []string) (models.SchemaSet, []string, error)
}

// PlanOracle turns a query and its schema context into a plan.
type PlanOracle interface {
	Plan(ctx context.Context, query string, schemas models.SchemaSet) (*models.Plan, error)
}

// OutcomeRecorder receives one record per answered request.
type OutcomeRecorder interface {
	Record(ctx context.Context, rec models.OutcomeRecord) error
}

// EngineConfig configures request-level limits.
type EngineConfig struct {
	RequestTimeout time.Duration
	SchemaTimeout  time.Duration
	// RecordTimeout bounds each outcome recording, which runs after the
	// answer has been returned.
	RecordTimeout time.Duration
}

// Engine answers natural-language queries: detect, fetch schemas, plan,
// then validate and execute with bounded correction.
type Engine struct {
	detector   Detector
	schemas    SchemaProvider
	oracle     PlanOracle
	controller *Controller
	recorder   OutcomeRecorder
	cfg        EngineConfig
	logger     *zap.Logger
	now        func() time.Time

	recording sync.WaitGroup
}

// NewEngine wires the pipeline. recorder may be nil.
func NewEngine(detector Detector, schemas SchemaProvider, oracle PlanOracle, controller *Controller,
	recorder OutcomeRecorder, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	return &Engine{
		detector:   detector,
		schemas:    schemas,
		oracle:     oracle,
		controller: controller,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger.Named("engine"),
		now:        time.Now,
	}
}

// Answer runs the full pipeline for one query. It always returns an
// answer; failures are reported in it rather than as an error.
func (e *Engine) Answer(ctx context.Context, query string) *models.Answer {
	started := e.now()
	requestID := uuid.NewString()
	ctx = llm.WithRequestID(ctx, requestID)

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	ans := &models.Answer{RequestID: requestID, EntityTypesUsed: []string{}}
	outcome, state := e.answer(ctx, query, ans)

	ans.Success = outcome.Success
	if outcome.Success {
		ans.Result = outcome.Result
	} else {
		ans.ErrorKind = outcome.Error.Kind
		ans.ErrorSummary = outcome.Error.UserMessage()
	}

	duration := e.now().Sub(started)
	e.logOutcome(ans, outcome, duration)
	e.record(models.OutcomeRecord{
		RequestID:           requestID,
		Query:               query,
		PlanVariant:         ans.PlanVariantUsed,
		EntityTypes:         ans.EntityTypesUsed,
		Attempts:            ans.Attempts,
		Success:             ans.Success,
		ErrorKind:           ans.ErrorKind,
		CorrectedErrorKinds: correctedErrorKinds(state),
		DetectionFallback:   ans.DetectionFallback,
		Duration:            duration,
		CompletedAt:         started.Add(duration),
	})
	return ans
}

// answer fills ans as the pipeline progresses. The retry state is nil when
// the request failed before the controller ran.
func (e *Engine) answer(ctx context.Context, query string, ans *models.Answer) (*models.ExecutionOutcome, *models.RetryState) {
	if strings.TrimSpace(query) == "" {
		ce := models.NewClassifiedError(models.ErrorKindPlanRejected, "query is empty", nil)
		ce.Rule = RuleVariant
		return failed(ce), nil
	}

	detection := e.detector.Detect(query)
	ans.DetectionFallback = detection.FallbackUsed
	ans.QueryMetadata = &models.QueryMetadata{
		Detection:  detection.Entities,
		TokenCount: detection.TokenCount,
	}
	if detection.FallbackUsed {
		e.logger.Info("Entity detection fell back",
			zap.String("request_id", ans.RequestID),
			zap.String("error_kind", "detection_fallback_used"),
			zap.Strings("entity_types", detection.EntityTypes()))
	}
	detected := detection.EntityTypes()
	if len(detected) == 0 {
		return failed(models.NewClassifiedError(models.ErrorKindSchemaUnavailable,
			"no entity types could be associated with the query", nil)), nil
	}

	schemas, err := e.fetchSchemas(ctx, detected)
	if err != nil {
		return failed(schemaError(err)), nil
	}
	if len(schemas) == 0 {
		return failed(models.NewClassifiedError(models.ErrorKindSchemaUnavailable,
			"none of the detected entity types exist: "+strings.Join(detected, ", "), nil)), nil
	}
	ans.EntityTypesUsed = schemas.EntityTypes()

	plan, err := e.oracle.Plan(ctx, query, schemas)
	if err != nil {
		return failed(oracleError(err)), nil
	}
	ans.PlanVariantUsed = plan.Variant()
	ans.Rationale = plan.Rationale
	if types := plan.EntityTypes(); len(types) > 0 {
		ans.EntityTypesUsed = types
	}

	outcome, state := e.controller.Run(ctx, plan, schemas)
	ans.Attempts = state.Attempt
	for _, c := range state.History {
		ans.QueryMetadata.Corrections = append(ans.QueryMetadata.Corrections, c.Description)
	}
	return outcome, state
}

// correctedErrorKinds lists the errors that triggered a retry. Repairs made
// before the first attempt have no triggering error and are skipped.
func correctedErrorKinds(state *models.RetryState) []models.ErrorKind {
	if state == nil {
		return nil
	}
	var kinds []models.ErrorKind
	for _, c := range state.History {
		if c.Error != nil {
			kinds = append(kinds, c.Error.Kind)
		}
	}
	return kinds
}

func (e *Engine) fetchSchemas(ctx context.Context, entityTypes []string) (models.SchemaSet, error) {
	if e.cfg.SchemaTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.SchemaTimeout)
		defer cancel()
	}
	schemas, _, err := e.schemas.GetSchemas(ctx, entityTypes)
	return schemas, err
}

func schemaError(err error) *models.ClassifiedError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewClassifiedError(models.ErrorKindTimeout, "schema lookup did not finish in time", err)
	}
	return models.NewClassifiedError(models.ErrorKindSchemaUnavailable, logging.SanitizeError(err), err)
}

func oracleError(err error) *models.ClassifiedError {
	ce := Classify(err)
	if ce.Kind != models.ErrorKindInternal {
		return ce
	}
	out := *ce
	out.Kind = models.ErrorKindOracleUnavailable
	return &out
}

func (e *Engine) logOutcome(ans *models.Answer, outcome *models.ExecutionOutcome, duration time.Duration) {
	fields := []zap.Field{
		zap.String("request_id", ans.RequestID),
		zap.String("plan_variant", string(ans.PlanVariantUsed)),
		zap.Strings("entity_types", ans.EntityTypesUsed),
		zap.Int("attempts", ans.Attempts),
		zap.Duration("duration", duration),
	}
	if outcome.Success {
		e.logger.Info("Answered query", append(fields, zap.Int("row_count", outcome.Result.RowCount))...)
		return
	}
	ce := outcome.Error
	fields = append(fields,
		zap.String("error_kind", string(ce.Kind)),
		zap.String("error", logging.TruncateString(ce.Message, logging.MaxQueryLogLength)))
	if ce.Rule != "" {
		fields = append(fields, zap.String("rule", ce.Rule))
	}
	e.logger.Warn("Query not answered", fields...)
}

// record hands the outcome to the recorder without delaying the answer.
func (e *Engine) record(rec models.OutcomeRecord) {
	if e.recorder == nil {
		return
	}
	e.recording.Add(1)
	go func() {
		defer e.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RecordTimeout)
		defer cancel()
		if err := e.recorder.Record(ctx, rec); err != nil {
			e.logger.Warn("Failed to record outcome",
				zap.String("request_id", rec.RequestID),
				zap.Error(err))
		}
	}()
}

// Close waits for pending outcome recordings.
func (e *Engine) Close() {
	e.recording.Wait()
}

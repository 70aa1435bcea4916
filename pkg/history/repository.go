// Package history keeps a durable record of answered queries in PostgreSQL.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// Entry is one stored outcome.
type Entry struct {
	ID uuid.UUID
	models.OutcomeRecord
}

// Repository provides data access for answer history.
type Repository interface {
	Create(ctx context.Context, rec models.OutcomeRecord) (uuid.UUID, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

var _ Repository = (*repository)(nil)

func (r *repository) Create(ctx context.Context, rec models.OutcomeRecord) (uuid.UUID, error) {
	id := uuid.New()
	entityTypes := rec.EntityTypes
	if entityTypes == nil {
		entityTypes = []string{}
	}

	corrected := make([]string, 0, len(rec.CorrectedErrorKinds))
	for _, kind := range rec.CorrectedErrorKinds {
		corrected = append(corrected, string(kind))
	}

	query := `
		INSERT INTO answer_history (
			id, request_id, query, success, plan_variant, entity_types,
			attempts, error_kind, corrected_error_kinds, detection_fallback,
			duration_ms, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		id,
		rec.RequestID,
		rec.Query,
		rec.Success,
		nullIfEmpty(string(rec.PlanVariant)),
		entityTypes,
		rec.Attempts,
		nullIfEmpty(string(rec.ErrorKind)),
		corrected,
		rec.DetectionFallback,
		rec.Duration.Milliseconds(),
		rec.CompletedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create answer history entry: %w", err)
	}
	return id, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, request_id, query, success, plan_variant, entity_types,
		       attempts, error_kind, corrected_error_kinds, detection_fallback,
		       duration_ms, completed_at
		FROM answer_history
		ORDER BY completed_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list answer history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			variant    *string
			errorKind  *string
			corrected  []string
			durationMs int64
		)
		err := row.Scan(&e.ID, &e.RequestID, &e.Query, &e.Success, &variant, &e.EntityTypes,
			&e.Attempts, &errorKind, &corrected, &e.DetectionFallback, &durationMs, &e.CompletedAt)
		if variant != nil {
			e.PlanVariant = models.PlanVariant(*variant)
		}
		if errorKind != nil {
			e.ErrorKind = models.ErrorKind(*errorKind)
		}
		for _, kind := range corrected {
			e.CorrectedErrorKinds = append(e.CorrectedErrorKinds, models.ErrorKind(kind))
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan answer history: %w", err)
	}
	return entries, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

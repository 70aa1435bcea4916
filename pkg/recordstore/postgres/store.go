// Package postgres is the PostgreSQL record store. It serves the metadata
// catalog, the DirectCall operations and read-only generated queries.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Store implements recordstore.Store on a pgx pool.
type Store struct {
	pool      *pgxpool.Pool
	ownedPool bool
	opts      recordstore.Options
	queries   recordstore.MetadataQueries
	logger    *zap.Logger
}

var _ recordstore.Store = (*Store)(nil)

// New wraps an existing pool. The caller keeps ownership of the pool.
func New(pool *pgxpool.Pool, opts recordstore.Options, logger *zap.Logger) *Store {
	return &Store{
		pool:    pool,
		opts:    opts,
		queries: recordstore.NewMetadataQueries(sql.DialectPostgres),
		logger:  logger.Named("postgres-store"),
	}
}

func (s *Store) Dialect() sql.Dialect { return sql.DialectPostgres }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool if the store created it.
func (s *Store) Close() error {
	if s.ownedPool {
		s.pool.Close()
	}
	return nil
}

// GetSchema loads an entity's fields and its child tables, one level deep.
func (s *Store) GetSchema(ctx context.Context, entityType string) (*models.EntitySchema, error) {
	fields, err := s.fieldRows(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		exists, err := s.Exists(ctx, entityType)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrEntityUnknown, entityType)
		}
	}

	children, err := s.childRows(ctx, entityType)
	if err != nil {
		return nil, err
	}

	schema := recordstore.AssembleSchema(entityType, fields, children)
	for i := range schema.Children {
		child := &schema.Children[i]
		childFields, err := s.fieldRows(ctx, child.EntityType)
		if err != nil {
			return nil, err
		}
		child.Schema = recordstore.AssembleSchema(child.EntityType, childFields, nil)
	}
	return schema, nil
}

func (s *Store) fieldRows(ctx context.Context, entityType string) ([]recordstore.FieldRow, error) {
	rows, err := s.pool.Query(ctx, s.queries.Fields, entityType)
	if err != nil {
		return nil, fmt.Errorf("query fields of %q: %w", entityType, err)
	}
	defer rows.Close()

	var result []recordstore.FieldRow
	for rows.Next() {
		var (
			r       recordstore.FieldRow
			label   *string
			allowed *string
			ref     *string
		)
		if err := rows.Scan(&r.Name, &label, &r.FieldType, &r.Required, &allowed, &ref); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		r.Label = deref(label)
		r.AllowedValues = deref(allowed)
		r.Reference = deref(ref)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}
	return result, nil
}

func (s *Store) childRows(ctx context.Context, entityType string) ([]recordstore.ChildRow, error) {
	rows, err := s.pool.Query(ctx, s.queries.Children, entityType)
	if err != nil {
		return nil, fmt.Errorf("query children of %q: %w", entityType, err)
	}
	defer rows.Close()

	var result []recordstore.ChildRow
	for rows.Next() {
		var c recordstore.ChildRow
		if err := rows.Scan(&c.FieldName, &c.ChildType); err != nil {
			return nil, fmt.Errorf("scan child row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate child rows: %w", err)
	}
	return result, nil
}

// Exists reports whether the catalog knows the entity type.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, s.queries.EntityExists, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check entity %q: %w", name, err)
	}
	return n > 0, nil
}

// ListEntityTypes returns the top-level entity types, sorted.
func (s *Store) ListEntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, s.queries.ListEntities)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	return names, nil
}

// Invoke runs a DirectCall with bound parameters.
func (s *Store) Invoke(ctx context.Context, call *models.DirectCall) (*models.ResultSet, error) {
	stmt, err := recordstore.BuildDirectCall(call, sql.DialectPostgres, s.opts)
	if err != nil {
		return nil, &recordstore.ExecError{Kind: models.ErrorKindPlanRejected, Cause: err}
	}

	rows, err := s.pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", call.Operation, call.EntityType, err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", call.Operation, call.EntityType, err)
	}
	if call.Operation == models.OperationCountRecords {
		recordstore.SetCount(result)
	}
	return result, nil
}

// RunReadOnly runs a generated query in a read-only transaction that is
// always rolled back. Rows are capped at the configured result limit.
func (s *Store) RunReadOnly(ctx context.Context, query string) (*models.ResultSet, error) {
	if err := recordstore.CheckReadOnly(query); err != nil {
		return nil, err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Warn("Failed to roll back read-only transaction", zap.Error(rbErr))
		}
	}()

	toRun := query
	if s.opts.MaxLimit > 0 {
		toRun = recordstore.WrapLimit(query, sql.DialectPostgres, s.opts.MaxLimit)
	}

	rows, err := tx.Query(ctx, toRun)
	if err != nil {
		return nil, fmt.Errorf("run generated query: %w", err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, fmt.Errorf("run generated query: %w", err)
	}
	return result, nil
}

func collectRows(rows pgx.Rows) (*models.ResultSet, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &models.ResultSet{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

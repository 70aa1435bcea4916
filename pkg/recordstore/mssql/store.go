// Package mssql is the SQL Server record store. It can act as the primary
// store or only run generated queries written in the sqlserver dialect.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	asksql "github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Store implements recordstore.Store on database/sql with go-mssqldb.
type Store struct {
	db      *sql.DB
	opts    recordstore.Options
	queries recordstore.MetadataQueries
	logger  *zap.Logger
}

var _ recordstore.Store = (*Store)(nil)

// New wraps an open connection. The store closes it on Close.
func New(db *sql.DB, opts recordstore.Options, logger *zap.Logger) *Store {
	return &Store{
		db:      db,
		opts:    opts,
		queries: recordstore.NewMetadataQueries(asksql.DialectSQLServer),
		logger:  logger.Named("mssql-store"),
	}
}

// Open connects with a sqlserver:// connection string and pings the server.
func Open(ctx context.Context, connStr string, opts recordstore.Options, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL Server connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping SQL Server: %w", err)
	}
	return New(db, opts, logger), nil
}

func (s *Store) Dialect() asksql.Dialect { return asksql.DialectSQLServer }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

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
	rows, err := s.db.QueryContext(ctx, s.queries.Fields, entityType)
	if err != nil {
		return nil, fmt.Errorf("query fields of %q: %w", entityType, err)
	}
	defer rows.Close()

	var result []recordstore.FieldRow
	for rows.Next() {
		var (
			r                   recordstore.FieldRow
			label, allowed, ref sql.NullString
		)
		if err := rows.Scan(&r.Name, &label, &r.FieldType, &r.Required, &allowed, &ref); err != nil {
			return nil, fmt.Errorf("scan field row: %w", err)
		}
		r.Label = label.String
		r.AllowedValues = allowed.String
		r.Reference = ref.String
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field rows: %w", err)
	}
	return result, nil
}

func (s *Store) childRows(ctx context.Context, entityType string) ([]recordstore.ChildRow, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.Children, entityType)
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
	if err := s.db.QueryRowContext(ctx, s.queries.EntityExists, name).Scan(&n); err != nil {
		return false, fmt.Errorf("check entity %q: %w", name, err)
	}
	return n > 0, nil
}

// ListEntityTypes returns the top-level entity types, sorted.
func (s *Store) ListEntityTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.ListEntities)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan entity type: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Invoke runs a DirectCall with bound parameters.
func (s *Store) Invoke(ctx context.Context, call *models.DirectCall) (*models.ResultSet, error) {
	stmt, err := recordstore.BuildDirectCall(call, asksql.DialectSQLServer, s.opts)
	if err != nil {
		return nil, &recordstore.ExecError{Kind: models.ErrorKindPlanRejected, Cause: err}
	}

	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", call.Operation, call.EntityType, err)
	}
	result, err := collectRows(rows, 0)
	if err != nil {
		return nil, fmt.Errorf("%s on %q: %w", call.Operation, call.EntityType, err)
	}
	if call.Operation == models.OperationCountRecords {
		recordstore.SetCount(result)
	}
	return result, nil
}

// RunReadOnly runs a generated query inside a transaction that is always
// rolled back. Reading stops at the configured result limit.
func (s *Store) RunReadOnly(ctx context.Context, query string) (*models.ResultSet, error) {
	if err := recordstore.CheckReadOnly(query); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Warn("Failed to roll back read-only transaction", zap.Error(rbErr))
		}
	}()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run generated query: %w", err)
	}
	result, err := collectRows(rows, s.opts.MaxLimit)
	if err != nil {
		return nil, fmt.Errorf("run generated query: %w", err)
	}
	return result, nil
}

// collectRows reads every row, or at most maxRows when maxRows is positive.
func collectRows(rows *sql.Rows, maxRows int) (*models.ResultSet, error) {
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for (maxRows <= 0 || len(resultRows) < maxRows) && rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			rowMap[col] = normalizeValue(columnTypes[i].DatabaseTypeName(), values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &models.ResultSet{
		Columns:  columnNames,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// normalizeValue turns driver byte slices into strings for textual and
// decimal columns.
func normalizeValue(typeName string, val any) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch strings.ToUpper(typeName) {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT", "XML",
		"DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return string(b)
	}
	return val
}

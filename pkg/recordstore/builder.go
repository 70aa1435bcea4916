package recordstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// Statement is a parameterized query ready for a driver.
type Statement struct {
	SQL  string
	Args []any
}

// BuildDirectCall renders a DirectCall as a parameterized SELECT for the
// dialect. Field names are quoted identifiers; values are always bound.
func BuildDirectCall(call *models.DirectCall, d sql.Dialect, opts Options) (*Statement, error) {
	b := &stmtBuilder{dialect: d}
	table := d.TableName(opts.TablePrefix, call.EntityType)

	switch call.Operation {
	case models.OperationSearchRecords:
		where, err := b.where(call.Parameters)
		if err != nil {
			return nil, err
		}
		orderBy, err := b.orderBy(call.OrderBy, opts.DefaultOrderBy)
		if err != nil {
			return nil, err
		}
		limit := opts.EffectiveLimit(call.Limit)
		return b.statement(b.selectRows(table, where, orderBy, limit)), nil

	case models.OperationGetRecord:
		name, ok := call.Parameters["name"]
		if !ok {
			return nil, fmt.Errorf("%w: get_record needs a name parameter", ErrInvalidCondition)
		}
		where, err := b.where(map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return b.statement(b.selectRows(table, where, "", 1)), nil

	case models.OperationCountRecords:
		where, err := b.where(call.Parameters)
		if err != nil {
			return nil, err
		}
		return b.statement("SELECT COUNT(*) AS " + d.QuoteIdent("count") + " FROM " + table + where), nil

	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrOperationNotAllowed, call.Operation)
	}
}

// WrapLimit bounds a generated query's result size with an outer LIMIT.
// The query sits on its own lines so a trailing line comment cannot swallow
// the closing parenthesis. SQL Server rejects CTEs and ORDER BY inside a
// derived table, so its query is returned unchanged and the runner stops
// reading at the limit instead.
func WrapLimit(query string, d sql.Dialect, limit int) string {
	if d == sql.DialectSQLServer {
		return query
	}
	return fmt.Sprintf("SELECT * FROM (\n%s\n) AS _limited LIMIT %d", query, limit)
}

type stmtBuilder struct {
	dialect sql.Dialect
	args    []any
}

func (b *stmtBuilder) bind(v any) string {
	b.args = append(b.args, v)
	if b.dialect == sql.DialectSQLServer {
		return fmt.Sprintf("@p%d", len(b.args))
	}
	if b.dialect == sql.DialectMySQL {
		return "?"
	}
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *stmtBuilder) statement(query string) *Statement {
	return &Statement{SQL: query, Args: b.args}
}

func (b *stmtBuilder) selectRows(table, where, orderBy string, limit int) string {
	if b.dialect == sql.DialectSQLServer {
		return fmt.Sprintf("SELECT TOP (%d) * FROM %s%s%s", limit, table, where, orderBy)
	}
	return fmt.Sprintf("SELECT * FROM %s%s%s LIMIT %d", table, where, orderBy, limit)
}

// where renders filters in field-name order so statements are deterministic.
func (b *stmtBuilder) where(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	fields := make([]string, 0, len(params))
	for f := range params {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	for _, f := range fields {
		cond, err := ParseCondition(params[f])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f, err)
		}
		clauses = append(clauses, b.clause(b.dialect.QuoteIdent(f), cond))
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (b *stmtBuilder) clause(col string, cond Condition) string {
	switch cond.Operator {
	case OpIs:
		if cond.Value == "set" {
			return col + " IS NOT NULL"
		}
		return col + " IS NULL"
	case OpIn, OpNotIn:
		values := cond.Value.([]any)
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = b.bind(v)
		}
		op := "IN"
		if cond.Operator == OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", "))
	case OpEq:
		if cond.Value == nil {
			return col + " IS NULL"
		}
	case OpNe:
		if cond.Value == nil {
			return col + " IS NOT NULL"
		}
		return col + " <> " + b.bind(cond.Value)
	}
	return fmt.Sprintf("%s %s %s", col, strings.ToUpper(cond.Operator), b.bind(cond.Value))
}

// ParseOrderBy splits "field [asc|desc]" into its parts.
func ParseOrderBy(orderBy string) (field, direction string, err error) {
	parts := strings.Fields(orderBy)
	switch len(parts) {
	case 1:
		return parts[0], "ASC", nil
	case 2:
		dir := strings.ToUpper(parts[1])
		if dir != "ASC" && dir != "DESC" {
			return "", "", fmt.Errorf("%w: order direction %q", ErrInvalidCondition, parts[1])
		}
		return parts[0], dir, nil
	default:
		return "", "", fmt.Errorf("%w: order_by %q", ErrInvalidCondition, orderBy)
	}
}

func (b *stmtBuilder) orderBy(orderBy, fallback string) (string, error) {
	if strings.TrimSpace(orderBy) == "" {
		orderBy = fallback
	}
	if strings.TrimSpace(orderBy) == "" {
		return "", nil
	}
	field, dir, err := ParseOrderBy(orderBy)
	if err != nil {
		return "", err
	}
	return " ORDER BY " + b.dialect.QuoteIdent(field) + " " + dir, nil
}

// SetCount fills ResultSet.Count from the single-cell result of a
// count_records statement.
func SetCount(rs *models.ResultSet) {
	if rs == nil || len(rs.Rows) != 1 || len(rs.Columns) != 1 {
		return
	}
	var n int64
	switch v := rs.Rows[0][rs.Columns[0]].(type) {
	case int64:
		n = v
	case int32:
		n = int64(v)
	case int:
		n = int64(v)
	case float64:
		n = int64(v)
	default:
		return
	}
	rs.Count = &n
}

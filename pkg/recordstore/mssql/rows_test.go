package mssql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
)

// countingConnector serves a fixed number of single-column rows for every
// query and remembers the last query text it received.
type countingConnector struct {
	rows      int
	lastQuery string
}

func (c *countingConnector) Connect(context.Context) (driver.Conn, error) {
	return &countingConn{c}, nil
}
func (c *countingConnector) Driver() driver.Driver            { return c }
func (c *countingConnector) Open(string) (driver.Conn, error) { return &countingConn{c}, nil }

type countingConn struct{ c *countingConnector }

func (cn *countingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (cn *countingConn) Close() error              { return nil }
func (cn *countingConn) Begin() (driver.Tx, error) { return countingTx{}, nil }

func (cn *countingConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	cn.c.lastQuery = query
	return &countingRows{total: cn.c.rows}, nil
}

type countingTx struct{}

func (countingTx) Commit() error   { return nil }
func (countingTx) Rollback() error { return nil }

type countingRows struct {
	total, served int
}

func (r *countingRows) Columns() []string { return []string{"name"} }
func (r *countingRows) Close() error      { return nil }

func (r *countingRows) Next(dest []driver.Value) error {
	if r.served == r.total {
		return io.EOF
	}
	r.served++
	dest[0] = "row"
	return nil
}

func TestRunReadOnly_StopsAtMaxLimit(t *testing.T) {
	connector := &countingConnector{rows: 12}
	store := New(sql.OpenDB(connector), recordstore.Options{TablePrefix: "tab", MaxLimit: 5}, zap.NewNop())
	defer store.Close()

	query := "WITH recent AS (SELECT name, creation FROM [tabCustomer]) SELECT name FROM recent ORDER BY creation DESC"
	result, err := store.RunReadOnly(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, 5, result.RowCount)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, query, connector.lastQuery, "the query is sent as generated")
}

func TestRunReadOnly_NoLimitReadsEverything(t *testing.T) {
	connector := &countingConnector{rows: 12}
	store := New(sql.OpenDB(connector), recordstore.Options{TablePrefix: "tab"}, zap.NewNop())
	defer store.Close()

	result, err := store.RunReadOnly(context.Background(), "SELECT name FROM [tabCustomer]")
	require.NoError(t, err)
	assert.Equal(t, 12, result.RowCount)
}

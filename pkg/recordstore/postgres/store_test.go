//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/recordstore"
	"github.com/ekaya-inc/ekaya-ask/pkg/testhelpers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	return New(testDB.DB.Pool, recordstore.Options{
		TablePrefix:    "tab",
		DefaultLimit:   20,
		MaxLimit:       100,
		DefaultOrderBy: "modified desc",
	}, zap.NewNop())
}

func TestStore_GetSchema(t *testing.T) {
	store := newTestStore(t)

	schema, err := store.GetSchema(context.Background(), "Sales Order")
	require.NoError(t, err)

	assert.Equal(t, "Sales Order", schema.EntityType)
	require.Len(t, schema.Fields, 3)
	assert.Equal(t, "customer", schema.Fields[0].Name)
	assert.Equal(t, models.FieldTypeReference, schema.Fields[0].Type)
	assert.Equal(t, "Customer", schema.Fields[0].Reference)
	assert.Equal(t, []string{"Draft", "To Deliver", "Completed"}, schema.Fields[1].AllowedValues)

	require.Len(t, schema.Children, 1)
	assert.Equal(t, "Sales Order Item", schema.Children[0].EntityType)
	require.NotNil(t, schema.Children[0].Schema)
	assert.Len(t, schema.Children[0].Schema.Fields, 2)
}

func TestStore_GetSchema_UnknownEntity(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSchema(context.Background(), "Spaceship")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEntityUnknown))
}

func TestStore_ExistsAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "Customer")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "Spaceship")
	require.NoError(t, err)
	assert.False(t, ok)

	types, err := store.ListEntityTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Sales Order"}, types)
}

func TestStore_Invoke(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("search with filter and default order", func(t *testing.T) {
		result, err := store.Invoke(ctx, &models.DirectCall{
			Operation:  models.OperationSearchRecords,
			EntityType: "Customer",
			Parameters: map[string]any{"territory": "North"},
		})
		require.NoError(t, err)
		require.Equal(t, 2, result.RowCount)
		assert.Equal(t, "CUST-0003", result.Rows[0]["name"])
	})

	t.Run("get record", func(t *testing.T) {
		result, err := store.Invoke(ctx, &models.DirectCall{
			Operation:  models.OperationGetRecord,
			EntityType: "Sales Order",
			Parameters: map[string]any{"name": "SO-0002"},
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.RowCount)
		assert.Equal(t, "To Deliver", result.Rows[0]["status"])
	})

	t.Run("count", func(t *testing.T) {
		result, err := store.Invoke(ctx, &models.DirectCall{
			Operation:  models.OperationCountRecords,
			EntityType: "Sales Order",
			Parameters: map[string]any{"docstatus": 1},
		})
		require.NoError(t, err)
		require.NotNil(t, result.Count)
		assert.Equal(t, int64(2), *result.Count)
	})

	t.Run("unknown column surfaces the driver error", func(t *testing.T) {
		_, err := store.Invoke(ctx, &models.DirectCall{
			Operation:  models.OperationSearchRecords,
			EntityType: "Customer",
			Parameters: map[string]any{"colour": "red"},
		})
		var pgErr *pgconn.PgError
		require.True(t, errors.As(err, &pgErr))
		assert.Equal(t, "42703", pgErr.Code)
	})
}

func TestStore_RunReadOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.RunReadOnly(ctx, `SELECT so.name, c.customer_name FROM "tabSales Order" so `+
		`JOIN "tabCustomer" c ON c.name = so.customer WHERE so.docstatus = 1 ORDER BY so.name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "customer_name"}, result.Columns)
	require.Equal(t, 2, result.RowCount)
	assert.Equal(t, "Acme Corp", result.Rows[0]["customer_name"])
}

func TestStore_RunReadOnly_CannotWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RunReadOnly(ctx, `WITH d AS (DELETE FROM "tabCustomer" RETURNING *) SELECT * FROM d`)
	var execErr *recordstore.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ErrorKindPlanRejected, execErr.Kind)
	assert.ErrorIs(t, err, apperrors.ErrReadOnlyViolation)

	var count int
	require.NoError(t, store.pool.QueryRow(ctx, `SELECT COUNT(*) FROM "tabCustomer"`).Scan(&count))
	assert.Equal(t, 3, count)
}

// Writes that slip past the keyword scan are still refused by the
// transaction access mode.
func TestStore_RunReadOnly_TransactionIsReadOnly(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RunReadOnly(context.Background(), `SELECT lo_create(0)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only transaction")
}

func TestStore_RunReadOnly_CapsRows(t *testing.T) {
	store := newTestStore(t)
	store.opts.MaxLimit = 2

	result, err := store.RunReadOnly(context.Background(), `SELECT generate_series(1, 50) AS n`)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
}

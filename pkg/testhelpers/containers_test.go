//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestDB_CatalogSeeded(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	var entityCount int
	err := testDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM entity_types").Scan(&entityCount)
	require.NoError(t, err)
	assert.Equal(t, 3, entityCount)

	tests := []struct {
		table    string
		expected int
	}{
		{`"tabCustomer"`, 3},
		{`"tabSales Order"`, 3},
	}
	for _, tt := range tests {
		var count int
		err := testDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM "+tt.table).Scan(&count)
		require.NoError(t, err, tt.table)
		assert.Equal(t, tt.expected, count, tt.table)
	}
}

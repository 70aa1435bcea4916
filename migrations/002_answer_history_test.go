//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/testhelpers"
)

// Test_002_AnswerHistory verifies the answer_history columns and indexes.
func Test_002_AnswerHistory(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	columns := map[string]struct {
		dataType string
		nullable string
	}{
		"id":                    {"uuid", "NO"},
		"request_id":            {"text", "NO"},
		"plan_variant":          {"text", "YES"},
		"entity_types":          {"ARRAY", "NO"},
		"error_kind":            {"text", "YES"},
		"corrected_error_kinds": {"ARRAY", "NO"},
		"detection_fallback":    {"boolean", "NO"},
		"duration_ms":           {"bigint", "NO"},
		"completed_at":          {"timestamp with time zone", "NO"},
	}
	for name, want := range columns {
		var dataType, nullable string
		err := testDB.DB.QueryRow(ctx, `
			SELECT data_type, is_nullable FROM information_schema.columns
			WHERE table_name = 'answer_history' AND column_name = $1`, name).Scan(&dataType, &nullable)
		require.NoError(t, err, "column %s", name)
		assert.Equal(t, want.dataType, dataType, "column %s", name)
		assert.Equal(t, want.nullable, nullable, "column %s", name)
	}

	for _, index := range []string{
		"idx_answer_history_request_id",
		"idx_answer_history_completed_at",
		"idx_answer_history_failures",
	} {
		var exists bool
		err := testDB.DB.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM pg_indexes
			WHERE tablename = 'answer_history' AND indexname = $1)`, index).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "index %s should exist", index)
	}
}

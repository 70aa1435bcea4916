package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

type fakeAnswerer struct {
	answer  *models.Answer
	queries []string
}

func (f *fakeAnswerer) Answer(_ context.Context, query string) *models.Answer {
	f.queries = append(f.queries, query)
	return f.answer
}

func serveAnswer(t *testing.T, engine Answerer, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewAnswerHandler(engine, zap.NewNop()).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/answer", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAnswerHandler_Success(t *testing.T) {
	engine := &fakeAnswerer{answer: &models.Answer{
		RequestID:       "req-1",
		Success:         true,
		PlanVariantUsed: models.PlanVariantDirectCall,
		EntityTypesUsed: []string{"Customer"},
		Attempts:        1,
		Result: &models.ResultSet{
			Columns:  []string{"name"},
			Rows:     []map[string]any{{"name": "CUST-001"}},
			RowCount: 1,
		},
	}}

	rec := serveAnswer(t, engine, `{"query":"show all customers"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"show all customers"}, engine.queries)

	var got models.Answer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Success)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, models.PlanVariantDirectCall, got.PlanVariantUsed)
	require.NotNil(t, got.Result)
	assert.Equal(t, 1, got.Result.RowCount)
}

func TestAnswerHandler_FailedAnswerIsStillOK(t *testing.T) {
	engine := &fakeAnswerer{answer: &models.Answer{
		RequestID:       "req-2",
		Success:         false,
		ErrorKind:       models.ErrorKindSchemaUnavailable,
		ErrorSummary:    "Cannot answer this query right now: record definitions are unavailable.",
		EntityTypesUsed: []string{},
	}}

	rec := serveAnswer(t, engine, `{"query":"how many widgets"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Answer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Success)
	assert.Equal(t, models.ErrorKindSchemaUnavailable, got.ErrorKind)
	assert.NotEmpty(t, got.ErrorSummary)
	assert.Nil(t, got.Result)
}

func TestAnswerHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "not json", body: `show all customers`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "missing query", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "blank query", body: `{"query":"   "}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "unknown field", body: `{"query":"x","sql":"DROP TABLE x"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "too large", body: `{"query":"` + strings.Repeat("a", maxAnswerBody) + `"}`, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "request_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeAnswerer{}
			rec := serveAnswer(t, engine, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, engine.queries, "engine must not be called")

			var got ApiResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.False(t, got.Success)
			assert.Equal(t, tt.wantCode, got.Error)
		})
	}
}

func TestAnswerHandler_MethodNotAllowed(t *testing.T) {
	mux := http.NewServeMux()
	NewAnswerHandler(&fakeAnswerer{}, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/answer", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

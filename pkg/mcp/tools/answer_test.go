package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func newAnswerServer(engine Answerer) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterAnswerTool(s, engine)
	return s
}

func TestRegisterAnswerTool_Listed(t *testing.T) {
	resp := callTool(t, newAnswerServer(&fakeAnswerer{}), `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	require.Len(t, resp.Result.Tools, 1)
	tool := resp.Result.Tools[0]
	assert.Equal(t, AnswerToolName, tool.Name)
	assert.NotEmpty(t, tool.Description)
	require.NotNil(t, tool.Annotations.ReadOnlyHint)
	assert.True(t, *tool.Annotations.ReadOnlyHint)
}

func TestAnswerTool_Success(t *testing.T) {
	engine := &fakeAnswerer{answer: &models.Answer{
		RequestID:       "req-1",
		Success:         true,
		PlanVariantUsed: models.PlanVariantGeneratedQuery,
		EntityTypesUsed: []string{"Customer", "Sales Order"},
		Attempts:        2,
		Result:          &models.ResultSet{Columns: []string{"name"}, Rows: []map[string]any{{"name": "SO-1"}}, RowCount: 1},
	}}

	resp := callTool(t, newAnswerServer(engine),
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"answer","arguments":{"query":"orders for Acme"}},"id":2}`)

	require.Nil(t, resp.Error)
	assert.False(t, resp.Result.IsError)
	assert.Equal(t, []string{"orders for Acme"}, engine.queries)

	require.Len(t, resp.Result.Content, 1)
	var got models.Answer
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, []string{"Customer", "Sales Order"}, got.EntityTypesUsed)
}

func TestAnswerTool_FailedAnswer(t *testing.T) {
	engine := &fakeAnswerer{answer: &models.Answer{
		RequestID:    "req-2",
		ErrorKind:    models.ErrorKindTimeout,
		ErrorSummary: "The query took too long to answer. Please try a narrower question.",
	}}

	resp := callTool(t, newAnswerServer(engine),
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"answer","arguments":{"query":"everything ever"}},"id":3}`)

	require.Nil(t, resp.Error)
	assert.True(t, resp.Result.IsError)
	var got ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
	assert.Equal(t, "timeout", got.Code)
	assert.Equal(t, "req-2", got.RequestID)
}

func TestAnswerTool_MissingQuery(t *testing.T) {
	for name, args := range map[string]string{
		"absent": `{}`,
		"blank":  `{"query":"  "}`,
		"wrong":  `{"query":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			engine := &fakeAnswerer{}
			resp := callTool(t, newAnswerServer(engine),
				`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"answer","arguments":`+args+`},"id":4}`)

			require.Nil(t, resp.Error)
			assert.True(t, resp.Result.IsError)
			assert.Empty(t, engine.queries)
		})
	}
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// callTool sends a JSON-RPC message through the server and decodes the
// response envelope.
func callTool(t *testing.T, s *server.MCPServer, message string) toolResponse {
	t.Helper()
	result := s.HandleMessage(context.Background(), []byte(message))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

type toolResponse struct {
	Result struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Annotations struct {
				ReadOnlyHint *bool `json:"readOnlyHint"`
			} `json:"annotations"`
		} `json:"tools"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeStores struct {
	dialects []sql.Dialect
	err      error
}

func (f fakeStores) Dialects() []sql.Dialect    { return f.dialects }
func (f fakeStores) Ping(context.Context) error { return f.err }

func TestRegisterHealthTool(t *testing.T) {
	tests := []struct {
		name   string
		stores fakeStores
		want   healthResult
	}{
		{
			name:   "all stores reachable",
			stores: fakeStores{dialects: []sql.Dialect{sql.DialectPostgres, sql.DialectSQLServer}},
			want: healthResult{
				Status:         "ok",
				Version:        "1.2.3",
				DefaultDialect: sql.DialectPostgres,
				Dialects:       []sql.Dialect{sql.DialectPostgres, sql.DialectSQLServer},
			},
		},
		{
			name: "store unreachable",
			stores: fakeStores{
				dialects: []sql.Dialect{sql.DialectPostgres},
				err:      errors.New("ping sqlserver: login failed for password=hunter2"),
			},
			want: healthResult{
				Status:         "degraded",
				Version:        "1.2.3",
				DefaultDialect: sql.DialectPostgres,
				Dialects:       []sql.Dialect{sql.DialectPostgres},
				StoreError:     "ping sqlserver: login failed for password=[REDACTED]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
			RegisterHealthTool(s, "1.2.3", sql.DialectPostgres, tt.stores)

			list := callTool(t, s, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
			require.Len(t, list.Result.Tools, 1)
			assert.Equal(t, HealthToolName, list.Result.Tools[0].Name)

			resp := callTool(t, s, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":2}`)
			require.Nil(t, resp.Error)
			require.Len(t, resp.Result.Content, 1)

			var got healthResult
			require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

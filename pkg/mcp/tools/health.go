package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/sql"
)

// HealthToolName is the MCP name of the readiness tool.
const HealthToolName = "health"

// RecordStores is the view of the record stores the health tool reports on.
type RecordStores interface {
	Dialects() []sql.Dialect
	Ping(ctx context.Context) error
}

type healthResult struct {
	Status         string        `json:"status"`
	Version        string        `json:"version"`
	DefaultDialect sql.Dialect   `json:"default_dialect"`
	Dialects       []sql.Dialect `json:"dialects"`
	StoreError     string        `json:"store_error,omitempty"`
}

// RegisterHealthTool adds the health tool. It reports which dialects
// generated queries may use and whether the record stores answer a ping;
// an unreachable store turns the status to "degraded".
func RegisterHealthTool(s *server.MCPServer, version string, defaultDialect sql.Dialect, stores RecordStores) {
	tool := mcp.NewTool(
		HealthToolName,
		mcp.WithDescription("Returns server status, version and the query dialects the record stores accept"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{
			Status:         "ok",
			Version:        version,
			DefaultDialect: defaultDialect,
			Dialects:       stores.Dialects(),
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := stores.Ping(pingCtx); err != nil {
			res.Status = "degraded"
			res.StoreError = logging.SanitizeError(err)
		}

		body, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}

package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
)

// CallLogger logs one INFO line per MCP tool call with its duration and
// outcome.
type CallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewCallLogger creates a CallLogger.
func NewCallLogger(logger *zap.Logger) *CallLogger {
	return &CallLogger{logger: logger.Named("mcp")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (c *CallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(c.beforeCallTool)
	hooks.AddAfterCallTool(c.afterCallTool)
	hooks.AddOnError(c.onError)
	return hooks
}

func (c *CallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	c.startTimes.Store(id, time.Now())
}

func (c *CallLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	isError := result != nil && result.IsError
	c.logger.Info("MCP tool call",
		zap.String("tool", req.Params.Name),
		zap.Bool("tool_error", isError),
		zap.Duration("duration", c.elapsed(id)),
	)
}

func (c *CallLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	tool := ""
	if req, ok := message.(*mcplib.CallToolRequest); ok {
		tool = req.Params.Name
	}
	c.logger.Warn("MCP tool call failed",
		zap.String("tool", tool),
		zap.String("error", logging.SanitizeError(err)),
		zap.Duration("duration", c.elapsed(id)),
	)
}

func (c *CallLogger) elapsed(id any) time.Duration {
	if v, ok := c.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

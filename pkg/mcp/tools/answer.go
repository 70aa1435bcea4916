// Package tools holds the MCP tool definitions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// AnswerToolName is the name of the answer tool.
const AnswerToolName = "answer"

// Answerer answers one natural-language query.
type Answerer interface {
	Answer(ctx context.Context, query string) *models.Answer
}

// RegisterAnswerTool adds the answer tool: a natural-language question in,
// rows or a classified failure out.
func RegisterAnswerTool(s *server.MCPServer, engine Answerer) {
	tool := mcp.NewTool(
		AnswerToolName,
		mcp.WithDescription("Answers a natural-language question about business records. "+
			"The question is planned into a read-only lookup, validated against the record definitions and executed. "+
			"Returns the matching rows, or an error with a kind such as plan_rejected or schema_unavailable."),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("The question to answer, e.g. \"show unpaid sales invoices for Acme\""),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return NewErrorResult("invalid_parameters", "query is required"), nil
		}

		ans := engine.Answer(ctx, query)
		if !ans.Success {
			return NewAnswerErrorResult(ans), nil
		}

		body, err := json.Marshal(ans)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal answer: %w", err)
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}

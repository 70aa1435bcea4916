package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// ErrorResponse represents a structured error in tool results.
// Returning errors as tool results keeps them visible to the calling model
// instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error     bool   `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad arguments, rejected plans).
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return errorResult(ErrorResponse{Error: true, Code: code, Message: message})
}

// NewAnswerErrorResult reports a failed answer with its error kind as the code.
func NewAnswerErrorResult(ans *models.Answer) *mcp.CallToolResult {
	return errorResult(ErrorResponse{
		Error:     true,
		Code:      string(ans.ErrorKind),
		Message:   ans.ErrorSummary,
		RequestID: ans.RequestID,
	})
}

func errorResult(resp ErrorResponse) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

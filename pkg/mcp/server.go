// Package mcp exposes the answer engine as a Model Context Protocol server.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	calls  *CallLogger
	logger *zap.Logger
}

// NewServer creates a new MCP server instance whose tool calls are logged.
func NewServer(name, version string, logger *zap.Logger) *Server {
	calls := NewCallLogger(logger)
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(calls.Hooks()),
	)

	return &Server{
		mcp:    mcpServer,
		calls:  calls,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterRoutes mounts the streamable HTTP transport at /mcp, wrapped by
// the given middleware (applied in order, outermost first).
func (s *Server) RegisterRoutes(mux *http.ServeMux, middleware ...func(http.Handler) http.Handler) {
	var h http.Handler = s.NewStreamableHTTPServer()
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	mux.Handle("/mcp", h)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

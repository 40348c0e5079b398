// Package mcp exposes configured OData services as MCP tools so AI agents
// can discover services and query SAP data through the proxy pipeline. The
// MCP surface is operator-side: it is launched locally (stdio) or bound to
// an internal address, and uses the stored credentials directly rather
// than an issued API key.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/sap"
)

// MCPServer wraps the mcp-go server with S4Kit tool registrations.
type MCPServer struct {
	store    *config.Store
	resolver *sap.Resolver
	forward  *sap.Forwarder
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with the S4Kit tools. The
// returned server is ready to serve over stdio or HTTP.
func NewMCPServer(store *config.Store, resolver *sap.Resolver, forward *sap.Forwarder, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:    store,
		resolver: resolver,
		forward:  forward,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"S4Kit SAP OData Proxy",
		"0.1.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance. Useful for
// advanced configuration or testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// MCP clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode on addr.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

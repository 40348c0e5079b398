package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/michal-majer/s4kit/internal/mcp"
	"github.com/michal-majer/s4kit/internal/sap"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes read access to the
configured SAP OData services as tools for AI agents.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with Claude Desktop or other MCP clients.

In HTTP mode, the server listens on the specified port for streamable HTTP
connections. The MCP server is an operator-side surface: it uses the stored
SAP credentials directly and must not be exposed to untrusted callers.`,
		Example: `  s4kit mcp                             # stdio mode (for Claude Desktop)
  s4kit mcp --transport http --port 3001  # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadYAML()

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()

	enc, err := newEncryptor(cfg)
	if err != nil {
		return err
	}

	tokens := sap.NewTokenCache(parseDuration(cfg.Proxy.TokenTimeout, 10*time.Second))
	forward := sap.NewForwarder(parseDuration(cfg.Proxy.RequestTimeout, 30*time.Second), tokens, logger)

	mcpSrv := mcp.NewMCPServer(store, sap.NewResolver(enc), forward, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP HTTP server", "addr", addr)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

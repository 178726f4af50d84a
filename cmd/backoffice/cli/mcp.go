package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	bmcp "github.com/faucetdb/backoffice/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes read-only
administrator tools: the role table, permission checks, the administrator
list and population stats. Supports stdio (default) and HTTP transports.

Over stdio, administrator tools take an actor_email argument naming the
administrator to act as. Over HTTP, every request must carry a bearer token
from POST /api/v1/session and tools run as the token's administrator.`,
		Example: `  backoffice mcp                              # stdio mode
  backoffice mcp --transport http --port 3001  # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport mode: stdio or http (default from mcp.transport)")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port, only used with --transport http (default from mcp.port)")

	return cmd
}

func runMCP(transport string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.MCP.Transport
	}
	if port == 0 {
		port = cfg.MCP.Port
	}

	logger := newLogger(cfg, false)
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	svc, err := newServices(cfg, store, logger)
	if err != nil {
		return err
	}
	mcpSrv := bmcp.NewMCPServer(svc.Admins, versionString(), logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		if cfg.Auth.JWTSecret == "" {
			logger.Warn("auth.jwt_secret is not set; MCP bearer tokens are signed with the development secret")
		}
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port), svc.Auth)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}

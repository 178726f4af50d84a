package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/backoffice/internal/server/middleware"
	"github.com/faucetdb/backoffice/internal/service"
)

// MCPServer wraps the mcp-go server with backoffice tool and resource
// registrations. Every tool is read-only: agents can inspect the role
// hierarchy and the administrator population but never change them.
type MCPServer struct {
	admins *service.AdminService
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all backoffice tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(admins *service.AdminService, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		admins: admins,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Backoffice Admin",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

type httpTransportKey struct{}

// overHTTP reports whether ctx belongs to a tool call received over the
// Streamable HTTP transport.
func overHTTP(ctx context.Context) bool {
	v, _ := ctx.Value(httpTransportKey{}).(bool)
	return v
}

// HTTPHandler returns the Streamable HTTP endpoint, mounted at /mcp. Every
// request must carry a bearer token belonging to an administrator; tool
// calls then run as that administrator.
func (s *MCPServer) HTTPHandler(tokens middleware.TokenValidator) http.Handler {
	streamable := server.NewStreamableHTTPServer(s.server,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			ctx = context.WithValue(ctx, httpTransportKey{}, true)
			if actor, ok := middleware.GetActor(r.Context()); ok {
				ctx = middleware.WithActor(ctx, actor)
			}
			return ctx
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(tokens))
		r.Use(middleware.RequireAdmin(s.admins))
		r.Handle("/mcp", streamable)
	})
	return r
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string, tokens middleware.TokenValidator) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.ListenAndServe()
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:   boolPtr(true),
		IdempotentHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}

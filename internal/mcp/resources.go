package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/backoffice/internal/permission"
)

const roleMatrixURI = "backoffice://roles/matrix"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			roleMatrixURI,
			"Administrator Role Matrix",
			mcp.WithResourceDescription(
				"For every pair of administrator roles, the management actions "+
					"(create, edit, delete) the first role holds over the second. "+
					"Nobody may edit or delete their own record regardless of role.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleRoleMatrixResource,
	)
}

func (s *MCPServer) handleRoleMatrixResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(permission.Matrix(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal role matrix: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      roleMatrixURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// requireString extracts a required, non-blank string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return strings.TrimSpace(val), nil
}

// optionalString extracts an optional string argument.
func optionalString(request mcp.CallToolRequest, key string) string {
	return strings.TrimSpace(request.GetString(key, ""))
}

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the model so it can self-correct; they do not terminate the
// MCP session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

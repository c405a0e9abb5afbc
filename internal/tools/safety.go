// Package tools provides shared utilities for MCP tool handlers.
package tools

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/marketbridge/mcp-marketdata/internal/server"
)

// CheckMutatingOperation verifies if an operation that changes the output
// tree is allowed given the current server configuration. Returns an error
// result if blocked, nil if allowed.
//
// This centralizes the read-only mode check to avoid code duplication
// across all tool handlers that write, create, or delete files.
//
// Protected operations include: save, create, delete
func CheckMutatingOperation(sc *server.ServerContext, operation string) *mcp.CallToolResult {
	if !sc.IsReadOnly() {
		return nil
	}

	return mcp.NewToolResultError(fmt.Sprintf(
		"%s operations are not allowed in read-only mode (inline responses remain available)",
		cases.Title(language.English).String(operation),
	))
}

// CheckProjectAccess verifies that the given project is not on the server's
// restricted list. Returns an error result if blocked, nil if allowed.
// An empty project name is always allowed; the restriction applies to
// explicit targets only.
func CheckProjectAccess(sc *server.ServerContext, project string) *mcp.CallToolResult {
	if project == "" || !sc.IsProjectRestricted(project) {
		return nil
	}

	return mcp.NewToolResultError(fmt.Sprintf(
		"project %q is restricted on this server", project,
	))
}

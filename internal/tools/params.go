// Package tools provides shared utilities and types for MCP tool implementations.
package tools

import (
	"fmt"

	mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/marketbridge/mcp-marketdata/internal/server"
)

// AddProjectParam returns the project tool option based on the server's
// output configuration. This keeps tool schemas honest:
//   - the project parameter is only added when project folders are enabled
//   - the description names the configured default project, if any
//
// Usage in tool registration:
//
//	opts := []mcp.ToolOption{
//	    mcp.WithDescription("..."),
//	}
//	opts = append(opts, tools.AddProjectParam(sc)...)
//	opts = append(opts, /* tool-specific params */...)
//	tool := mcp.NewTool("tool_name", opts...)
func AddProjectParam(sc *server.ServerContext) []mcp.ToolOption {
	var opts []mcp.ToolOption

	engine := sc.Engine()
	if engine == nil || !engine.Config().EnableProjectFolders {
		return opts
	}

	desc := "Project folder to group output files under (optional)"
	if cfg := sc.Config(); cfg != nil && cfg.DefaultProject != "" {
		desc = fmt.Sprintf("Project folder to group output files under (optional, defaults to %q)", cfg.DefaultProject)
	}
	opts = append(opts, mcp.WithString("project",
		mcp.Description(desc),
	))

	return opts
}

// AddOutputParams returns the per-call output override parameters shared by
// every tool that runs datasets through the decision engine: the force
// flags, format and compression overrides, the filename prefix, and the
// project parameter when project folders are enabled.
func AddOutputParams(sc *server.ServerContext) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithBoolean("force_inline",
			mcp.Description("Return the result inline regardless of size (mutually exclusive with force_file)"),
		),
		mcp.WithBoolean("force_file",
			mcp.Description("Write the result to a file regardless of size (mutually exclusive with force_inline)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format for the result (default from server configuration)"),
			mcp.Enum("csv", "json"),
		),
		mcp.WithBoolean("compress",
			mcp.Description("Gzip-compress file output (default from server configuration)"),
		),
		mcp.WithString("filename_prefix",
			mcp.Description("Prefix for the generated output filename (optional, sanitized before use)"),
		),
	}
	opts = append(opts, AddProjectParam(sc)...)
	return opts
}

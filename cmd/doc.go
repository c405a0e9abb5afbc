// Package cmd provides the command-line interface for mcp-marketdata.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the MCP server (default behavior when no subcommand is provided)
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// The CLI maintains backwards compatibility by running the serve command when
// no subcommand is specified, preserving the original behavior of the application.
//
// Command Structure:
//
//	mcp-marketdata [flags]                 # Starts the MCP server (default)
//	mcp-marketdata serve [flags]           # Explicitly starts the MCP server
//	mcp-marketdata version                 # Shows version information
//	mcp-marketdata self-update             # Updates to latest release
//	mcp-marketdata help [command]          # Shows help information
//
// The serve command supports multiple transport options:
//   - stdio: Standard input/output (default) - for command-line integration
//   - sse: Server-Sent Events over HTTP - for web-based clients
//   - streamable-http: Streamable HTTP transport - for HTTP-based integration
//
// Transport Configuration Examples:
//
//	mcp-marketdata serve --transport stdio           # Default STDIO transport
//	mcp-marketdata serve --transport sse --http-addr :8080 --sse-endpoint /sse
//	mcp-marketdata serve --transport streamable-http --http-addr :9000 --http-endpoint /mcp
//
// The serve command also supports configuration flags for the upstream
// market-data API (base URL, API key, rate limits), for the output decision
// engine (output root, token and row thresholds, default format) and for the
// security posture (read-only mode, restricted projects). Flags layer over
// MARKETDATA_* environment variables and the optional YAML config file.
package cmd

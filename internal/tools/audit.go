// Package tools provides shared utilities and types for MCP tool implementations.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// WrapWithAuditLogging wraps a tool handler with audit logging and
// instrumentation. The wrapper automatically captures:
//   - Tool invocation timing
//   - Project and filename information from request arguments
//   - Success/error status from the handler result
//   - OpenTelemetry trace context for correlation
//
// It also opens a span for the tool call, bumps the server's tool-call
// counter, and records the per-tool duration metric when an
// instrumentation provider is configured. The audit record goes through
// the ServerContext's audit logger, which is always present.
func WrapWithAuditLogging(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		if stats := sc.Stats(); stats != nil {
			stats.IncrementToolCalls()
		}

		// Create tool invocation with span context
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		// Extract project and file info from request arguments
		args := request.GetArguments()
		extractAuditInfoFromArgs(invocation, args)

		// Execute the actual handler
		result, err := handler(ctx, request, sc)

		// Determine success/error status
		if err != nil {
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		} else if result != nil && result.IsError {
			// MCP tool errors are returned in the result, not as Go errors
			invocation.Complete(false, nil)
			// Try to extract error message from result content
			if len(result.Content) > 0 {
				if textContent, ok := result.Content[0].(mcp.TextContent); ok {
					invocation.Error = textContent.Text
				}
			}
		} else {
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		if provider := sc.InstrumentationProvider(); provider != nil {
			provider.Metrics().RecordToolCall(ctx, toolName, invocation.Status(), invocation.Duration)
		}

		// Log the tool invocation (full audit record, warn level on failure)
		if auditLogger := sc.AuditLogger(); auditLogger != nil {
			auditLogger.Log(ctx, invocation)
		}

		return result, err
	}
}

// extractAuditInfoFromArgs extracts project, filename, and format
// information from tool request arguments for audit logging.
func extractAuditInfoFromArgs(invocation *instrumentation.ToolInvocation, args map[string]interface{}) {
	// Extract the target project
	if project, ok := args["project"].(string); ok && project != "" {
		invocation.WithProject(project)
	} else if name, ok := args["name"].(string); ok && name != "" {
		// Project lifecycle tools pass the project as "name"
		invocation.WithProject(name)
	}

	if filename := extractFilename(args); filename != "" {
		invocation.Filename = filename
	}

	if format, ok := args["format"].(string); ok && format != "" {
		invocation.Format = format
	}
}

// extractFilename extracts the file identifier from various argument patterns.
// Different tools use different parameter names for the target file.
func extractFilename(args map[string]interface{}) string {
	// Try common parameter names for the file identifier
	nameKeys := []string{"filename", "filename_prefix", "pattern"}
	for _, key := range nameKeys {
		if name, ok := args[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the mcp-marketdata server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, tool calls, and file output
//   - Distributed tracing for tool invocations, upstream calls, and store operations
//   - Prometheus metrics export via /metrics endpoint
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_file_writes: Gauge of file writes currently in progress
//
// Tool Invocation Metrics:
//   - mcp_tool_calls_total: Counter of tool calls by tool and status
//   - mcp_tool_call_duration_seconds: Histogram of tool call durations
//
// Output Decision Metrics:
//   - output_decisions_total: Counter of inline-versus-file verdicts by verdict, format, rows bucket
//   - output_estimate_duration_seconds: Histogram of token estimation durations
//
// File Output Metrics:
//   - output_files_written_total: Counter of dataset files written by format
//   - output_bytes_written_total: Counter of bytes written by format
//   - output_file_write_duration_seconds: Histogram of write durations
//   - output_write_retries_total: Counter of retried write attempts
//   - output_write_failures_total: Counter of writes that exhausted all attempts
//
// Project Store Metrics:
//   - project_operations_total: Counter of store operations by operation and status
//   - project_operation_duration_seconds: Histogram of store operation durations
//
// Upstream API Metrics:
//   - upstream_requests_total: Counter of market-data requests by kind and result
//   - upstream_request_duration_seconds: Histogram of upstream request durations
//
// # Cardinality Considerations
//
// IMPORTANT: Project names are unbounded user input, so file and project
// metrics omit them by default. Row counts are folded into fixed buckets via
// ClassifyRowCount. On servers hosting few, known projects the per-project
// labels can be re-enabled with INSTRUMENTATION_DETAILED_LABELS=true; use
// distributed tracing for per-project debugging elsewhere.
//
// High cardinality can lead to:
//   - Increased memory usage in metrics backends
//   - Slower query performance
//   - Higher storage costs
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - MCP tool invocations
//   - Upstream market-data requests
//   - Project store operations
//   - Dataset file writes
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - INSTRUMENTATION_DETAILED_LABELS: Include project labels on metrics (default: false)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: mcp-marketdata)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "mcp-marketdata",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/mcp", 200, time.Since(start))
//
//	// Record an output decision
//	recorder.RecordDecision(ctx, instrumentation.VerdictFile, "csv", rows)
package instrumentation

package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrTool      = "tool"
	attrVerdict   = "verdict"
	attrFormat    = "format"
	attrRows      = "rows"
	attrOperation = "operation"
	attrProject   = "project"
	attrKind      = "kind"
	attrResult    = "result"
	attrReason    = "reason"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeWrites        metric.Int64UpDownCounter

	// Tool invocation metrics
	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram

	// Output decision metrics
	decisionsTotal   metric.Int64Counter
	estimateDuration metric.Float64Histogram

	// File output metrics
	filesWrittenTotal  metric.Int64Counter
	bytesWrittenTotal  metric.Int64Counter
	fileWriteDuration  metric.Float64Histogram
	writeRetriesTotal  metric.Int64Counter
	writeFailuresTotal metric.Int64Counter

	// Project store metrics
	projectOperationsTotal   metric.Int64Counter
	projectOperationDuration metric.Float64Histogram

	// Upstream API metrics
	upstreamRequestsTotal       metric.Int64Counter
	upstreamRequestDuration     metric.Float64Histogram
	upstreamCacheEventsTotal    metric.Int64Counter
	upstreamCacheEvictionsTotal metric.Int64Counter

	// Configuration
	// detailedLabels controls whether high-cardinality labels (project names)
	// are included in file and project metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeWrites, err = meter.Int64UpDownCounter(
		"active_file_writes",
		metric.WithDescription("Number of file writes currently in progress"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_file_writes gauge: %w", err)
	}

	// Tool Invocation Metrics
	m.toolCallsTotal, err = meter.Int64Counter(
		"mcp_tool_calls_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_calls_total counter: %w", err)
	}

	m.toolCallDuration, err = meter.Float64Histogram(
		"mcp_tool_call_duration_seconds",
		metric.WithDescription("MCP tool invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_call_duration_seconds histogram: %w", err)
	}

	// Output Decision Metrics
	m.decisionsTotal, err = meter.Int64Counter(
		"output_decisions_total",
		metric.WithDescription("Total number of inline-versus-file output decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_decisions_total counter: %w", err)
	}

	m.estimateDuration, err = meter.Float64Histogram(
		"output_estimate_duration_seconds",
		metric.WithDescription("Token estimation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.001, 0.01, 0.1, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_estimate_duration_seconds histogram: %w", err)
	}

	// File Output Metrics
	m.filesWrittenTotal, err = meter.Int64Counter(
		"output_files_written_total",
		metric.WithDescription("Total number of dataset files written"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_files_written_total counter: %w", err)
	}

	m.bytesWrittenTotal, err = meter.Int64Counter(
		"output_bytes_written_total",
		metric.WithDescription("Total bytes of dataset files written"),
		metric.WithUnit("{byte}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_bytes_written_total counter: %w", err)
	}

	m.fileWriteDuration, err = meter.Float64Histogram(
		"output_file_write_duration_seconds",
		metric.WithDescription("Dataset file write duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_file_write_duration_seconds histogram: %w", err)
	}

	m.writeRetriesTotal, err = meter.Int64Counter(
		"output_write_retries_total",
		metric.WithDescription("Total number of retried write attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_write_retries_total counter: %w", err)
	}

	m.writeFailuresTotal, err = meter.Int64Counter(
		"output_write_failures_total",
		metric.WithDescription("Total number of file writes that failed after all attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create output_write_failures_total counter: %w", err)
	}

	// Project Store Metrics
	m.projectOperationsTotal, err = meter.Int64Counter(
		"project_operations_total",
		metric.WithDescription("Total number of project store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project_operations_total counter: %w", err)
	}

	m.projectOperationDuration, err = meter.Float64Histogram(
		"project_operation_duration_seconds",
		metric.WithDescription("Project store operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project_operation_duration_seconds histogram: %w", err)
	}

	// Upstream API Metrics
	m.upstreamRequestsTotal, err = meter.Int64Counter(
		"upstream_requests_total",
		metric.WithDescription("Total number of upstream market-data requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_requests_total counter: %w", err)
	}

	m.upstreamRequestDuration, err = meter.Float64Histogram(
		"upstream_request_duration_seconds",
		metric.WithDescription("Upstream market-data request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_request_duration_seconds histogram: %w", err)
	}

	m.upstreamCacheEventsTotal, err = meter.Int64Counter(
		"upstream_cache_events_total",
		metric.WithDescription("Total number of upstream query cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_cache_events_total counter: %w", err)
	}

	m.upstreamCacheEvictionsTotal, err = meter.Int64Counter(
		"upstream_cache_evictions_total",
		metric.WithDescription("Total number of upstream query cache evictions"),
		metric.WithUnit("{eviction}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_cache_evictions_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolCall records one MCP tool invocation with its status and duration.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	if m.toolCallsTotal == nil || m.toolCallDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	}

	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDecision records one inline-versus-file decision.
//
// CARDINALITY NOTE: The row count is classified into a fixed bucket set via
// ClassifyRowCount rather than labeled with the exact count.
func (m *Metrics) RecordDecision(ctx context.Context, verdict, format string, rows int) {
	if m.decisionsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrVerdict, verdict),
		attribute.String(attrFormat, format),
		attribute.String(attrRows, ClassifyRowCount(rows)),
	}

	m.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEstimate records the duration of one token estimation, labeled by
// the dataset's row-count bucket.
func (m *Metrics) RecordEstimate(ctx context.Context, rows int, duration time.Duration) {
	if m.estimateDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrRows, ClassifyRowCount(rows)),
	}

	m.estimateDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFileWrite records one completed dataset file write.
//
// CARDINALITY NOTE: When detailedLabels is false (default), only the format
// label is recorded. When detailedLabels is true, the project name is also
// included; keep this disabled on servers hosting many projects.
func (m *Metrics) RecordFileWrite(ctx context.Context, project, format string, bytes int64, duration time.Duration) {
	if m.filesWrittenTotal == nil || m.bytesWrittenTotal == nil || m.fileWriteDuration == nil {
		return // Instrumentation not initialized
	}

	// Always include the format (low cardinality)
	attrs := []attribute.KeyValue{
		attribute.String(attrFormat, format),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrProject, project))
	}

	m.filesWrittenTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.bytesWrittenTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	m.fileWriteDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordWriteRetry records one retried write attempt.
func (m *Metrics) RecordWriteRetry(ctx context.Context, format string) {
	if m.writeRetriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.writeRetriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFormat, format)))
}

// RecordWriteFailure records one file write that failed after all attempts.
func (m *Metrics) RecordWriteFailure(ctx context.Context, format string) {
	if m.writeFailuresTotal == nil {
		return // Instrumentation not initialized
	}

	m.writeFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrFormat, format)))
}

// RecordProjectOperation records a project store operation with its status
// and duration.
//
// CARDINALITY NOTE: When detailedLabels is false (default), only operation and
// status labels are recorded. When detailedLabels is true, the project name is
// also included.
func (m *Metrics) RecordProjectOperation(ctx context.Context, operation, project, status string, duration time.Duration) {
	if m.projectOperationsTotal == nil || m.projectOperationDuration == nil {
		return // Instrumentation not initialized
	}

	// Always include operation and status (low cardinality)
	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrProject, project))
	}

	m.projectOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.projectOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUpstreamRequest records one upstream market-data request with its
// request kind, result, and duration.
// Result should be one of: "success", "error", "rate_limited"
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, kind, result string, duration time.Duration) {
	if m.upstreamRequestsTotal == nil || m.upstreamRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrKind, kind),
		attribute.String(attrResult, result),
	}

	m.upstreamRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.upstreamRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUpstreamCacheEvent records one upstream query cache lookup.
// Result should be "hit" or "miss".
func (m *Metrics) RecordUpstreamCacheEvent(ctx context.Context, kind, result string) {
	if m.upstreamCacheEventsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrKind, kind),
		attribute.String(attrResult, result),
	}

	m.upstreamCacheEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUpstreamCacheEviction records one upstream query cache eviction.
// Reason should be one of: "expired", "lru"
func (m *Metrics) RecordUpstreamCacheEviction(ctx context.Context, reason string) {
	if m.upstreamCacheEvictionsTotal == nil {
		return // Instrumentation not initialized
	}

	m.upstreamCacheEvictionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// IncrementActiveWrites increments the in-progress file writes counter.
func (m *Metrics) IncrementActiveWrites(ctx context.Context) {
	if m.activeWrites == nil {
		return // Instrumentation not initialized
	}

	m.activeWrites.Add(ctx, 1)
}

// DecrementActiveWrites decrements the in-progress file writes counter.
func (m *Metrics) DecrementActiveWrites(ctx context.Context) {
	if m.activeWrites == nil {
		return // Instrumentation not initialized
	}

	m.activeWrites.Add(ctx, -1)
}

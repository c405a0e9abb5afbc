package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures one MCP tool call for structured logging. Build it
// at the start of a handler, enrich it as facts become known, and complete it
// when the handler returns.
type ToolInvocation struct {
	Tool      string
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Project the invocation targeted, if any.
	Project string

	// Output routing details, set once a decision was made.
	Verdict string
	Format  string

	// Dataset shape, set once the dataset was estimated.
	Rows   int
	Tokens int

	// File output details, set when the dataset was written to disk.
	Filename string
	Bytes    int64

	// Trace context for correlating logs with spans.
	TraceID string
	SpanID  string
}

// NewToolInvocation creates a ToolInvocation with the start time set to now.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithProject sets the target project.
func (ti *ToolInvocation) WithProject(project string) *ToolInvocation {
	ti.Project = project
	return ti
}

// WithDecision sets the output routing verdict and serialization format.
func (ti *ToolInvocation) WithDecision(useFile bool, format string) *ToolInvocation {
	if useFile {
		ti.Verdict = VerdictFile
	} else {
		ti.Verdict = VerdictInline
	}
	ti.Format = format
	return ti
}

// WithDataset sets the dataset row and estimated token counts.
func (ti *ToolInvocation) WithDataset(rows, tokens int) *ToolInvocation {
	ti.Rows = rows
	ti.Tokens = tokens
	return ti
}

// WithFile sets the written filename and its size in bytes.
func (ti *ToolInvocation) WithFile(filename string, bytes int64) *ToolInvocation {
	ti.Filename = filename
	ti.Bytes = bytes
	return ti
}

// WithSpanContext captures the trace and span IDs from the context, if a
// valid span is present.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete records the outcome and computes the duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// RowsBucket returns the classified row-count bucket for cardinality-safe
// logging.
func (ti *ToolInvocation) RowsBucket() string {
	return ClassifyRowCount(ti.Rows)
}

// Status returns "success" or "error" for use as a metric label.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns cardinality-controlled attributes for operational logs.
// Project names and filenames are deliberately excluded; use LogAuditAttrs
// for the full record.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("rows_bucket", ti.RowsBucket()),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Verdict != "" {
		attrs = append(attrs, slog.String("verdict", ti.Verdict))
	}
	if ti.Format != "" {
		attrs = append(attrs, slog.String("format", ti.Format))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	return attrs
}

// LogAuditAttrs returns the full attribute set for audit logs, including
// exact values that LogAttrs withholds.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("project", ti.Project),
		slog.String("verdict", ti.Verdict),
		slog.String("format", ti.Format),
		slog.String("filename", ti.Filename),
		slog.Int("rows", ti.Rows),
		slog.Int("tokens", ti.Tokens),
		slog.Int64("bytes", ti.Bytes),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return attrs
}

// AuditLogger writes completed tool invocations to a structured logger.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger. A nil logger falls back to
// slog.Default().
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// Log writes the invocation's full audit record. Failed invocations are
// logged at warn level so they stand out without being treated as server
// errors.
func (a *AuditLogger) Log(ctx context.Context, ti *ToolInvocation) {
	level := slog.LevelInfo
	if !ti.Success {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, "tool invocation", ti.LogAuditAttrs()...)
}

// TraceIDFromContext returns the trace ID of the span in the context, or ""
// when no valid span is present. Convenience wrapper for log call sites.
func TraceIDFromContext(ctx context.Context) string {
	return GetTraceID(ctx)
}

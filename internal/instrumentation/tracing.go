package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the mcp-marketdata package.
const TracerName = "github.com/marketbridge/mcp-marketdata"

// Span attribute keys for tool and output operations.
const (
	// SpanAttrTool is the MCP tool name.
	SpanAttrTool = "mcp.tool"

	// SpanAttrProject is the project the output belongs to.
	SpanAttrProject = "mcp.project"

	// SpanAttrVerdict is the output routing verdict (inline or file).
	SpanAttrVerdict = "output.verdict"

	// SpanAttrFormat is the serialization format (json, csv, ...).
	SpanAttrFormat = "output.format"

	// SpanAttrRows is the exact dataset row count.
	SpanAttrRows = "output.rows"

	// SpanAttrRowsBucket is the classified row-count bucket (lower cardinality).
	SpanAttrRowsBucket = "output.rows_bucket"

	// SpanAttrTokens is the estimated token count of the rendered output.
	SpanAttrTokens = "output.tokens"

	// SpanAttrThreshold is the token threshold the estimate was compared against.
	SpanAttrThreshold = "output.threshold"

	// SpanAttrCompressed indicates whether the written file was gzip-compressed.
	SpanAttrCompressed = "output.compressed"

	// SpanAttrFilename is the name of the written file.
	SpanAttrFilename = "output.filename"

	// SpanAttrOperation is the project store operation (create, list, etc.).
	SpanAttrOperation = "store.operation"

	// SpanAttrKind is the upstream request kind (quotes, history, ...).
	SpanAttrKind = "upstream.kind"

	// SpanAttrSymbol is the ticker symbol of an upstream request.
	SpanAttrSymbol = "upstream.symbol"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming and cardinality controls.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 10),
	}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithProject adds the project name attribute. Empty names are skipped so
// callers can pass an optional parameter through unconditionally.
func (b *SpanAttributeBuilder) WithProject(project string) *SpanAttributeBuilder {
	if project != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrProject, project))
	}
	return b
}

// WithVerdict adds the output routing verdict attribute.
func (b *SpanAttributeBuilder) WithVerdict(useFile bool) *SpanAttributeBuilder {
	verdict := VerdictInline
	if useFile {
		verdict = VerdictFile
	}
	b.attrs = append(b.attrs, attribute.String(SpanAttrVerdict, verdict))
	return b
}

// WithFormat adds the serialization format attribute.
func (b *SpanAttributeBuilder) WithFormat(format string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrFormat, format))
	return b
}

// WithRows adds row-count attributes with cardinality control.
// Adds both the exact count and the classified bucket.
func (b *SpanAttributeBuilder) WithRows(rows int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.Int(SpanAttrRows, rows),
		attribute.String(SpanAttrRowsBucket, ClassifyRowCount(rows)),
	)
	return b
}

// WithRowsBucket adds only the classified row-count bucket (for lower cardinality).
func (b *SpanAttributeBuilder) WithRowsBucket(rows int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrRowsBucket, ClassifyRowCount(rows)),
	)
	return b
}

// WithTokens adds the estimated token count and the threshold it was
// compared against.
func (b *SpanAttributeBuilder) WithTokens(tokens, threshold int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.Int(SpanAttrTokens, tokens),
		attribute.Int(SpanAttrThreshold, threshold),
	)
	return b
}

// WithCompressed adds the compression indicator attribute.
func (b *SpanAttributeBuilder) WithCompressed(compressed bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Bool(SpanAttrCompressed, compressed))
	return b
}

// WithFilename adds the written filename attribute. Empty names are skipped.
func (b *SpanAttributeBuilder) WithFilename(name string) *SpanAttributeBuilder {
	if name != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrFilename, name))
	}
	return b
}

// WithOperation adds the store operation attribute.
func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrOperation, operation))
	return b
}

// WithUpstream adds upstream request attributes. The symbol is skipped when
// empty (search and status requests carry none).
func (b *SpanAttributeBuilder) WithUpstream(kind, symbol string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrKind, kind))
	if symbol != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrSymbol, symbol))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// Returns the context with the span and the span itself.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a span for an MCP tool invocation.
// Automatically adds tool name and sets appropriate span kind.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartUpstreamSpan starts a span for upstream market-data requests.
// Includes the request kind and, when present, the symbol being queried.
func StartUpstreamSpan(ctx context.Context, kind, symbol string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, attribute.String(SpanAttrKind, kind))
	if symbol != "" {
		allAttrs = append(allAttrs, attribute.String(SpanAttrSymbol, symbol))
	}
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "upstream."+kind,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartStoreSpan starts a span for project store operations.
// Includes operation and, when present, project attributes.
func StartStoreSpan(ctx context.Context, operation, project string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, attribute.String(SpanAttrOperation, operation))
	if project != "" {
		allAttrs = append(allAttrs, attribute.String(SpanAttrProject, project))
	}
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
// Returns empty string if no valid span is present.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}

// SpanContextString returns a human-readable trace context string.
// Format: "trace_id=X span_id=Y" or empty string if no valid context.
func SpanContextString(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return "trace_id=" + span.SpanContext().TraceID().String() +
		" span_id=" + span.SpanContext().SpanID().String()
}

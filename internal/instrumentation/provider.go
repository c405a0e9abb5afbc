package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider wires up the OpenTelemetry SDK according to a Config and owns the
// resulting meter and tracer providers. A disabled provider is fully
// functional: its Metrics record nothing and no exporters are started.
type Provider struct {
	config         Config
	metrics        *Metrics
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	mu            sync.Mutex
	shutdownFuncs []func(context.Context) error
}

// NewProvider creates and starts an instrumentation provider.
//
// When config.Enabled is false the returned provider carries no-op metrics
// and registers no exporters, so callers never need to branch on whether
// instrumentation is active.
//
// The Prometheus exporter registers into the default Prometheus registry, so
// promhttp.Handler() serves everything recorded here.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	p := &Provider{config: config}

	if !config.Enabled {
		p.metrics = &Metrics{}
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	reader, err := newMetricReader(ctx, config)
	if err != nil {
		return nil, err
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	p.shutdownFuncs = append(p.shutdownFuncs, p.meterProvider.Shutdown)
	otel.SetMeterProvider(p.meterProvider)

	p.metrics, err = NewMetrics(p.meterProvider.Meter(TracerName), config.DetailedLabels)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	if config.TracingExporter != "none" {
		exporter, err := newTraceExporter(ctx, config)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}

		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(
				sdktrace.TraceIDRatioBased(config.TraceSamplingRate),
			)),
		)
		p.shutdownFuncs = append(p.shutdownFuncs, p.tracerProvider.Shutdown)
		otel.SetTracerProvider(p.tracerProvider)
	}

	return p, nil
}

// newMetricReader builds the metric reader for the configured exporter.
func newMetricReader(ctx context.Context, config Config) (sdkmetric.Reader, error) {
	switch config.MetricsExporter {
	case "prometheus":
		exporter, err := otelprom.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return exporter, nil

	case "otlp":
		opts := []otlpmetrichttp.Option{}
		if config.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(config.OTLPEndpoint))
		}
		if config.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(DefaultMetricInterval),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(DefaultMetricInterval),
		), nil

	default:
		// Unreachable after Validate, kept for safety.
		return nil, fmt.Errorf("unknown metrics exporter %q", config.MetricsExporter)
	}
}

// newTraceExporter builds the span exporter for the configured exporter.
func newTraceExporter(ctx context.Context, config Config) (sdktrace.SpanExporter, error) {
	switch config.TracingExporter {
	case "otlp":
		opts := []otlptracehttp.Option{}
		if config.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(config.OTLPEndpoint))
		}
		if config.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, nil

	case "stdout":
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exporter, nil

	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", config.TracingExporter)
	}
}

// Metrics returns the metrics recorder. Never nil, even when disabled.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Enabled reports whether instrumentation is active.
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}

// TracingEnabled reports whether spans are being exported.
func (p *Provider) TracingEnabled() bool {
	return p.config.Enabled && p.config.TracingExporter != "none"
}

// Shutdown flushes and stops all exporters. Safe to call multiple times.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	funcs := p.shutdownFuncs
	p.shutdownFuncs = nil
	p.mu.Unlock()

	var errs []error
	// Shut down in reverse registration order so spans flush before the
	// meter provider they may record into.
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

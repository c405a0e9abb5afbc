package instrumentation

import (
	"context"
	"testing"
)

func TestNewProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-disabled",
		ServiceVersion:  "1.0.0",
		Enabled:         false,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("Failed to create disabled provider: %v", err)
	}

	if provider.Enabled() {
		t.Error("Enabled() should be false")
	}
	if provider.TracingEnabled() {
		t.Error("TracingEnabled() should be false")
	}

	// A disabled provider still hands out a usable recorder
	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("Metrics should not be nil for a disabled provider")
	}

	// Recording through it must be a no-op, not a panic
	metrics.RecordToolCall(ctx, "marketdata_get_quotes", StatusSuccess, 0)
	metrics.IncrementActiveWrites(ctx)
	metrics.DecrementActiveWrites(ctx)

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown of disabled provider returned error: %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewProvider(ctx, Config{
		ServiceName:     "test-invalid",
		Enabled:         true,
		MetricsExporter: "carrier-pigeon",
		TracingExporter: "none",
	})
	if err == nil {
		t.Fatal("expected error for unknown metrics exporter")
	}
}

func TestProvider_ShutdownIdempotent(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-shutdown",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown returned error: %v", err)
	}
	// Second shutdown must not error or panic
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown returned error: %v", err)
	}
}

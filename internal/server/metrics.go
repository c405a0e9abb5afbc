package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the listen address used when none is configured.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown
	DefaultShutdownTimeout = 30 * time.Second

	// metricsReadHeaderTimeout bounds header reads on the metrics listener.
	metricsReadHeaderTimeout = 10 * time.Second
)

// MetricsServerConfig holds configuration for the standalone metrics server.
type MetricsServerConfig struct {
	// Addr is the listen address. Empty means DefaultMetricsAddr.
	Addr string

	// InstrumentationProvider supplies the Prometheus-exported metrics.
	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves Prometheus metrics on a dedicated listener, separate
// from the MCP transport so scrapes never contend with tool traffic.
type MetricsServer struct {
	addr   string
	server *http.Server
}

// NewMetricsServer creates a metrics server exposing /metrics and a minimal
// /healthz on the configured address. The provider is required even though
// the handler reads the default registry: a server without one would serve
// an empty scrape forever, which is a wiring mistake worth failing on.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, fmt.Errorf("instrumentation provider is required")
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()

	// The OTel prometheus exporter registers into the default registry,
	// so the stock promhttp handler serves everything.
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return &MetricsServer{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		},
	}, nil
}

// Addr returns the listen address the server was configured with.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// Start runs the metrics server. It blocks until the listener fails or
// Shutdown is called, and returns http.ErrServerClosed after a clean shutdown.
func (s *MetricsServer) Start() error {
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return err
}

// Shutdown gracefully stops the metrics server. Calling it before Start is
// harmless.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

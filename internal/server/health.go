package server

import (
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// serverContext provides access to dependencies for health checks
	serverContext *ServerContext
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	// Server starts as ready by default
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information including
// upstream and output subsystem status.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Mode            string                      `json:"mode"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	Upstream        *UpstreamHealthStatus       `json:"upstream,omitempty"`
	Output          *OutputHealthStatus         `json:"output,omitempty"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
	Stats           *ServerStats                `json:"stats,omitempty"`
}

// UpstreamHealthStatus provides health information about the market-data API client.
type UpstreamHealthStatus struct {
	Configured bool `json:"configured"`
}

// OutputHealthStatus provides health information about the file output subsystem.
type OutputHealthStatus struct {
	RootDir      string `json:"root_dir"`
	Available    bool   `json:"available"`
	ActiveWrites int    `json:"active_writes"`
}

// InstrumentationHealthCheck provides health information about instrumentation.
type InstrumentationHealthCheck struct {
	Enabled bool `json:"enabled"`
	Tracing bool `json:"tracing,omitempty"`
}

// ServerStats mirrors the Stats counters for the detailed health response.
type ServerStats struct {
	ToolCalls       int64 `json:"tool_calls"`
	InlineResponses int64 `json:"inline_responses"`
	FilesWritten    int64 `json:"files_written"`
	BytesWritten    int64 `json:"bytes_written"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness probes indicate whether the process should be restarted.
// This should be a simple check that the server process is running.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simple liveness check - if we can respond, we're alive
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := HealthResponse{
			Status: "ok",
		}

		// Add version if available from server context
		if h.serverContext != nil && h.serverContext.Config() != nil {
			response.Version = h.serverContext.Config().Version
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// Readiness probes indicate whether the server is ready to receive traffic.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks := make(map[string]string)
		allOk := true

		// Check if server is marked as ready
		if !h.ready.Load() {
			checks["ready"] = "not ready"
			allOk = false
		} else {
			checks["ready"] = "ok"
		}

		// Check if server context is not shutdown
		if h.serverContext != nil && h.serverContext.IsShutdown() {
			checks["shutdown"] = "shutting down"
			allOk = false
		} else {
			checks["shutdown"] = "ok"
		}

		// Check the output root when one is configured
		if h.serverContext != nil {
			if cfg := h.serverContext.Config(); cfg != nil && cfg.OutputRootDir != "" {
				if dirExists(cfg.OutputRootDir) {
					checks["output_root"] = "ok"
				} else {
					checks["output_root"] = "missing"
					allOk = false
				}
			}
		}

		// Check instrumentation provider if enabled
		if h.serverContext != nil {
			provider := h.serverContext.InstrumentationProvider()
			if provider != nil {
				if provider.Enabled() {
					checks["instrumentation"] = "ok"
				} else {
					checks["instrumentation"] = "disabled"
				}
			}
		}

		response := HealthResponse{
			Checks: checks,
		}

		if allOk {
			response.Status = "ok"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
// This endpoint provides comprehensive health information including upstream and
// output subsystem status.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := DetailedHealthResponse{
			Status: "ok",
			Mode:   h.determineMode(),
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		// Add version if available
		if h.serverContext != nil && h.serverContext.Config() != nil {
			response.Version = h.serverContext.Config().Version
		}

		// Check subsystem status
		if h.serverContext != nil {
			response.Upstream = h.getUpstreamStatus()
			response.Output = h.getOutputStatus()
			response.Instrumentation = h.getInstrumentationStatus()
			response.Stats = h.getStats()
		}

		// Determine overall status
		if !h.ready.Load() {
			response.Status = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else if h.serverContext != nil && h.serverContext.IsShutdown() {
			response.Status = "shutting down"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// determineMode returns the operational mode of the server.
func (h *HealthChecker) determineMode() string {
	if h.serverContext == nil {
		return "unknown"
	}

	if h.serverContext.IsReadOnly() {
		return "read-only"
	}

	return "read-write"
}

// getUpstreamStatus returns market-data client health status.
func (h *HealthChecker) getUpstreamStatus() *UpstreamHealthStatus {
	return &UpstreamHealthStatus{
		Configured: h.serverContext.MarketDataClient() != nil,
	}
}

// getOutputStatus returns file output subsystem health status.
func (h *HealthChecker) getOutputStatus() *OutputHealthStatus {
	cfg := h.serverContext.Config()
	if cfg == nil || cfg.OutputRootDir == "" {
		return nil
	}

	return &OutputHealthStatus{
		RootDir:      cfg.OutputRootDir,
		Available:    dirExists(cfg.OutputRootDir),
		ActiveWrites: h.serverContext.GetActiveWriteCount(),
	}
}

// getInstrumentationStatus returns instrumentation health status.
func (h *HealthChecker) getInstrumentationStatus() *InstrumentationHealthCheck {
	provider := h.serverContext.InstrumentationProvider()
	if provider == nil {
		return &InstrumentationHealthCheck{
			Enabled: false,
		}
	}

	return &InstrumentationHealthCheck{
		Enabled: provider.Enabled(),
		Tracing: provider.TracingEnabled(),
	}
}

// getStats returns a snapshot of operational counters.
func (h *HealthChecker) getStats() *ServerStats {
	stats := h.serverContext.Stats()
	if stats == nil {
		return nil
	}

	toolCalls, inline, files, bytes := stats.GetStats()
	return &ServerStats{
		ToolCalls:       toolCalls,
		InlineResponses: inline,
		FilesWritten:    files,
		BytesWritten:    bytes,
	}
}

// dirExists reports whether the path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

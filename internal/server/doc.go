// Package server provides the ServerContext pattern and related infrastructure
// for the MCP market-data server.
//
// This package implements the core server architecture patterns including:
//
//   - ServerContext: Encapsulates all server dependencies and lifecycle management
//   - Functional Options: Clean dependency injection and configuration
//   - Logger Interface: Abstraction for logging operations
//   - Configuration Management: Centralized server configuration
//   - HealthChecker: Liveness, readiness, and detailed health endpoints
//   - MetricsServer: Standalone Prometheus metrics listener
//
// The ServerContext Pattern:
//
// The ServerContext struct follows the context pattern commonly used in Go
// applications to encapsulate dependencies and provide clean separation of
// concerns. It includes:
//
//   - Upstream market-data client interface
//   - Output decision engine and project store
//   - Logger interface
//   - Configuration settings
//   - Instrumentation provider and audit logger
//   - Context for cancellation and timeouts
//   - Lifecycle management (shutdown, cleanup)
//
// All dependencies are injected using functional options, making the code
// highly testable and modular. The pattern enables:
//
//   - Easy mocking for unit tests
//   - Runtime configuration flexibility
//   - Clean dependency management
//   - Graceful shutdown handling
//
// Example usage:
//
//	// Create a server context with custom configuration
//	ctx := context.Background()
//	serverCtx, err := NewServerContext(ctx,
//		WithMarketDataClient(mdClient),
//		WithEngine(engine),
//		WithProjectStore(store),
//		WithLogger(customLogger),
//		WithReadOnly(true),
//		WithDefaultProject("research"),
//		WithLogLevel("debug"),
//	)
//	if err != nil {
//		return err
//	}
//	defer serverCtx.Shutdown()
//
//	// Use the context in MCP tools
//	client := serverCtx.MarketDataClient()
//	engine := serverCtx.Engine()
//	logger := serverCtx.Logger()
//
//	// Check if server is shutting down
//	if serverCtx.IsShutdown() {
//		return ErrServerShutdown
//	}
//
// Tool handlers register in-flight file writes on the context so shutdown can
// report what it abandoned, and bump the Stats counters surfaced by the
// /healthz/detailed endpoint.
//
// Configuration Management:
//
// The Config struct provides centralized configuration with sensible defaults
// and support for:
//
//   - Server identity (name, version)
//   - Output settings (default project, output root directory)
//   - Read-only mode
//   - Logging configuration (level, format)
//   - Project restrictions for mutating tools
//
// The configuration supports deep cloning to prevent accidental mutations
// and follows immutable patterns where possible.
package server

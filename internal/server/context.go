package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// ServerContext encapsulates all dependencies needed by the MCP server
// and provides a clean abstraction for dependency injection and lifecycle management.
type ServerContext struct {
	// Core dependencies
	mdClient marketdata.Client
	engine   *output.Engine
	store    *output.ProjectStore
	logger   Logger
	config   *Config

	// Observability
	instrumentationProvider *instrumentation.Provider
	auditLogger             *instrumentation.AuditLogger

	// Internal counters for the detailed health endpoint
	stats *Stats

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle management
	mu       sync.RWMutex
	shutdown bool

	// Active file write tracking for visibility during shutdown
	activeWrites map[string]*ActiveWrite
	writesMu     sync.RWMutex
}

// ActiveWrite describes an in-flight file write registered by a tool handler.
// Writes are bound to the server context, so cancellation during shutdown
// aborts them; the registry exists so shutdown can say what it abandoned.
type ActiveWrite struct {
	// Tool is the MCP tool that started the write.
	Tool string

	// Project is the project folder receiving the file, if any.
	Project string

	// Filename is the generated output filename.
	Filename string

	// Format is the output format being written.
	Format string

	// StartedAt is when the write began.
	StartedAt time.Time
}

// Stats tracks coarse operational counters for the detailed health endpoint.
// Per-label metrics live in the instrumentation package; these counters stay
// cheap enough to bump on every call even when instrumentation is disabled.
type Stats struct {
	// ToolCalls counts tool invocations since startup.
	ToolCalls int64

	// InlineResponses counts results returned inline.
	InlineResponses int64

	// FilesWritten counts results redirected to files.
	FilesWritten int64

	// BytesWritten sums the size of all written files.
	BytesWritten int64

	mu sync.RWMutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// IncrementToolCalls increments the tool invocation counter.
func (s *Stats) IncrementToolCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ToolCalls++
}

// IncrementInlineResponses increments the inline response counter.
func (s *Stats) IncrementInlineResponses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InlineResponses++
}

// IncrementFilesWritten records a completed file write of the given size.
func (s *Stats) IncrementFilesWritten(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesWritten++
	s.BytesWritten += bytes
}

// GetStats returns a snapshot of current counters.
func (s *Stats) GetStats() (toolCalls, inlineResponses, filesWritten, bytesWritten int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ToolCalls, s.InlineResponses, s.FilesWritten, s.BytesWritten
}

// NewServerContext creates a new ServerContext with default values.
// Use the provided functional options to customize the context.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	// Create a cancellable context
	serverCtx, cancel := context.WithCancel(ctx)

	// Initialize with defaults
	sc := &ServerContext{
		ctx:          serverCtx,
		cancel:       cancel,
		config:       NewDefaultConfig(),
		logger:       NewDefaultLogger(),
		activeWrites: make(map[string]*ActiveWrite),
		stats:        NewStats(),
	}

	// Apply functional options
	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	// Validate required dependencies
	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	// Audit logging defaults to the process logger when not injected
	if sc.auditLogger == nil {
		sc.auditLogger = instrumentation.NewAuditLogger(nil)
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// MarketDataClient returns the upstream market-data client interface.
func (sc *ServerContext) MarketDataClient() marketdata.Client {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.mdClient
}

// Engine returns the output decision engine.
func (sc *ServerContext) Engine() *output.Engine {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.engine
}

// ProjectStore returns the project store for output file management.
func (sc *ServerContext) ProjectStore() *output.ProjectStore {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.store
}

// InstrumentationProvider returns the OpenTelemetry provider, or nil when
// instrumentation was never wired.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// AuditLogger returns the tool invocation audit logger.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Stats returns the operational counter tracker.
func (sc *ServerContext) Stats() *Stats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

// Logger returns the logger interface.
func (sc *ServerContext) Logger() Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// IsReadOnly returns true when tools that create or delete files are blocked.
func (sc *ServerContext) IsReadOnly() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config != nil && sc.config.ReadOnly
}

// IsProjectRestricted reports whether mutating operations are blocked for the
// given project by configuration.
func (sc *ServerContext) IsProjectRestricted(project string) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.config == nil {
		return false
	}
	for _, restricted := range sc.config.RestrictedProjects {
		if project == restricted {
			return true
		}
	}
	return false
}

// RegisterActiveWrite registers an in-flight file write for shutdown visibility.
func (sc *ServerContext) RegisterActiveWrite(writeID string, write *ActiveWrite) {
	sc.writesMu.Lock()
	defer sc.writesMu.Unlock()

	if sc.activeWrites != nil {
		sc.activeWrites[writeID] = write
		sc.logger.Debug("Registered active write", "writeID", writeID)
	}
}

// UnregisterActiveWrite removes a completed file write from tracking.
func (sc *ServerContext) UnregisterActiveWrite(writeID string) {
	sc.writesMu.Lock()
	defer sc.writesMu.Unlock()

	if sc.activeWrites != nil {
		delete(sc.activeWrites, writeID)
		sc.logger.Debug("Unregistered active write", "writeID", writeID)
	}
}

// GetActiveWriteCount returns the number of in-flight file writes.
func (sc *ServerContext) GetActiveWriteCount() int {
	sc.writesMu.RLock()
	defer sc.writesMu.RUnlock()
	return len(sc.activeWrites)
}

// GetActiveWrites returns a copy of all in-flight file writes.
func (sc *ServerContext) GetActiveWrites() map[string]*ActiveWrite {
	sc.writesMu.RLock()
	defer sc.writesMu.RUnlock()

	// Return a copy to avoid race conditions
	writes := make(map[string]*ActiveWrite)
	for id, write := range sc.activeWrites {
		writes[id] = write
	}
	return writes
}

// AbandonActiveWrite drops a specific in-flight write from tracking by ID.
// The write itself is aborted through context cancellation; this only clears
// the registry entry.
func (sc *ServerContext) AbandonActiveWrite(writeID string) error {
	sc.writesMu.Lock()
	defer sc.writesMu.Unlock()

	write, exists := sc.activeWrites[writeID]
	if !exists {
		return fmt.Errorf("write %s not found", writeID)
	}

	if write != nil {
		sc.logger.Info("Abandoning active write",
			"writeID", writeID,
			"filename", write.Filename,
			"elapsed", time.Since(write.StartedAt).String())
	}

	delete(sc.activeWrites, writeID)
	return nil
}

// Shutdown gracefully shuts down the server context.
// This cancels the context and releases any resources.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context")

	// Report in-flight writes; context cancellation below aborts them
	sc.cleanupActiveWrites()

	// Cancel the context
	if sc.cancel != nil {
		sc.cancel()
	}

	// Mark as shutdown
	sc.shutdown = true

	sc.logger.Info("Server context shutdown complete")
	return nil
}

// cleanupActiveWrites logs and clears all in-flight file writes.
func (sc *ServerContext) cleanupActiveWrites() {
	sc.writesMu.Lock()
	defer sc.writesMu.Unlock()

	if len(sc.activeWrites) == 0 {
		return
	}

	sc.logger.Info("Abandoning in-flight file writes", "count", len(sc.activeWrites))

	for writeID, write := range sc.activeWrites {
		if write != nil {
			sc.logger.Debug("Abandoning active write",
				"writeID", writeID,
				"tool", write.Tool,
				"filename", write.Filename)
		}
	}

	// Clear the write registry
	sc.activeWrites = make(map[string]*ActiveWrite)
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// validate ensures all required dependencies are set.
func (sc *ServerContext) validate() error {
	if sc.mdClient == nil {
		return ErrMissingClient
	}
	if sc.engine == nil {
		return ErrMissingEngine
	}
	if sc.store == nil {
		return ErrMissingStore
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Logger defines the interface for logging operations.
type Logger interface {
	// Info logs an informational message.
	Info(msg string, args ...interface{})

	// Debug logs a debug message.
	Debug(msg string, args ...interface{})

	// Warn logs a warning message.
	Warn(msg string, args ...interface{})

	// Error logs an error message.
	Error(msg string, args ...interface{})

	// With returns a new logger with additional context fields.
	With(args ...interface{}) Logger
}

// Config holds the server configuration.
type Config struct {
	// Server settings
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// Output settings
	DefaultProject string `json:"defaultProject"`
	OutputRootDir  string `json:"outputRootDir"`

	// Read-only mode blocks tools that create or delete files
	ReadOnly bool `json:"readOnly"`

	// Logging settings
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`

	// Security settings
	RestrictedProjects []string `json:"restrictedProjects"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName: "mcp-marketdata",
		Version:    "0.1.0",
		ReadOnly:   false,
		LogLevel:   "info",
		LogFormat:  "json",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c

	// Deep copy slices
	if c.RestrictedProjects != nil {
		clone.RestrictedProjects = make([]string, len(c.RestrictedProjects))
		copy(clone.RestrictedProjects, c.RestrictedProjects)
	}

	return &clone
}

package server

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithMarketDataClient sets the upstream market-data client for the ServerContext.
func WithMarketDataClient(client marketdata.Client) Option {
	return func(sc *ServerContext) error {
		if client == nil {
			return ErrMissingClient
		}
		sc.mdClient = client
		return nil
	}
}

// WithEngine sets the output decision engine for the ServerContext.
func WithEngine(engine *output.Engine) Option {
	return func(sc *ServerContext) error {
		if engine == nil {
			return ErrMissingEngine
		}
		sc.engine = engine
		return nil
	}
}

// WithProjectStore sets the project store for the ServerContext.
func WithProjectStore(store *output.ProjectStore) Option {
	return func(sc *ServerContext) error {
		if store == nil {
			return ErrMissingStore
		}
		sc.store = store
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithServerName sets the server name in the configuration.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ServerName = name
		return nil
	}
}

// WithDefaultProject sets the project folder used when a tool call names none.
func WithDefaultProject(project string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.DefaultProject = project
		return nil
	}
}

// WithOutputRootDir records the output root directory in the configuration.
// The decision engine and project store carry their own copy; this one feeds
// the health endpoints.
func WithOutputRootDir(dir string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.OutputRootDir = dir
		return nil
	}
}

// WithReadOnly enables or disables read-only mode. In read-only mode the
// server refuses tool calls that create or delete files.
func WithReadOnly(enabled bool) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ReadOnly = enabled
		return nil
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.LogLevel = level
		return nil
	}
}

// WithRestrictedProjects sets the list of projects closed to mutating tools.
func WithRestrictedProjects(projects []string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		if projects != nil {
			sc.config.RestrictedProjects = make([]string, len(projects))
			copy(sc.config.RestrictedProjects, projects)
		}
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry instrumentation provider.
// This enables production-grade observability including metrics and tracing.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// WithAuditLogger sets the audit logger used to record tool invocations.
// When unset, NewServerContext falls back to the process slog logger.
func WithAuditLogger(auditLogger *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) error {
		sc.auditLogger = auditLogger
		return nil
	}
}

// Error definitions for ServerContext validation and operations.
var (
	ErrMissingClient  = errors.New("market-data client is required")
	ErrMissingEngine  = errors.New("output decision engine is required")
	ErrMissingStore   = errors.New("project store is required")
	ErrMissingLogger  = errors.New("logger is required")
	ErrMissingConfig  = errors.New("configuration is required")
	ErrServerShutdown = errors.New("server context has been shutdown")
)

// DefaultLogger is a simple logger implementation that wraps the standard library logger.
type DefaultLogger struct {
	logger *log.Logger
	level  string
}

// NewDefaultLogger creates a new default logger with standard error output.
func NewDefaultLogger() Logger {
	return &DefaultLogger{
		logger: log.New(os.Stderr, "[mcp-marketdata] ", log.LstdFlags|log.Lshortfile),
		level:  "info",
	}
}

// Info logs an informational message.
func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.logger.Printf("[INFO] "+msg, args...)
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	if l.level == "debug" {
		l.logger.Printf("[DEBUG] "+msg, args...)
	}
}

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.logger.Printf("[WARN] "+msg, args...)
}

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

// With returns a new logger with additional context fields.
func (l *DefaultLogger) With(args ...interface{}) Logger {
	// For the default logger, we'll just add the context to the prefix
	if len(args) > 0 {
		prefix := fmt.Sprintf("[mcp-marketdata] %v ", args)
		return &DefaultLogger{
			logger: log.New(os.Stderr, prefix, log.LstdFlags|log.Lshortfile),
			level:  l.level,
		}
	}
	return l
}

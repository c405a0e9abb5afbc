// Package logging provides structured logging utilities for the mcp-marketdata application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization, API key masking)
//   - Host/URL sanitization for security
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "project.list")
//	logger.Info("listing project files",
//	    logging.Project("research"),
//	    logging.Path("research/quotes_20250114_153000.csv"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("upstream request failed",
//	    logging.Host(baseURL),
//	    logging.SanitizedErr(err))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - User emails are hashed to prevent PII leakage while allowing correlation
//   - Upstream API URLs have IP addresses redacted to prevent topology leakage
//   - API keys and tokens are never logged directly
package logging

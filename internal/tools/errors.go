// Package tools provides shared utilities and types for MCP tool implementations.
package tools

import (
	"errors"
	"fmt"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// FormatOutputError formats an output-subsystem error into a user-friendly
// message. This function handles the typed errors from the output package
// and returns appropriate messages for MCP tool responses.
//
// # Security
//
// Messages built here deliberately omit absolute paths, directory modes,
// and other server-side details the typed errors carry for operator logs.
// The full error still reaches the structured log; the tool response only
// tells the caller what to change.
func FormatOutputError(err error) string {
	if err == nil {
		return ""
	}

	// Handle specific error types with custom user-facing messages
	var securityErr *output.SecurityError
	if errors.As(err, &securityErr) {
		return "path rejected: the target would fall outside the output root"
	}

	var permErr *output.PermissionError
	if errors.As(err, &permErr) {
		return "output directory is not writable: ask the server operator to fix directory permissions"
	}

	var argErr *output.InvalidArgumentError
	if errors.As(err, &argErr) {
		// Argument mistakes are the caller's to fix, so the detail is safe
		// and necessary.
		return argErr.Error()
	}

	var estErr *output.EstimationError
	if errors.As(err, &estErr) {
		return fmt.Sprintf("the dataset could not be serialized for output: %s", estErr.Reason)
	}

	var cfgErr *output.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "the server's output configuration is invalid: contact the server operator"
	}

	var writeErr *output.FileWriteError
	if errors.As(err, &writeErr) {
		return fmt.Sprintf("file write failed after %d attempts: try again or force inline output", writeErr.Attempts)
	}

	// Handle sentinel errors
	switch {
	case errors.Is(err, output.ErrPathEscapesRoot):
		return "path rejected: the target would fall outside the output root"
	case errors.Is(err, output.ErrPermissionDenied):
		return "output directory is not writable: ask the server operator to fix directory permissions"
	case errors.Is(err, output.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, output.ErrEstimationFailed):
		return "the dataset could not be serialized for output"
	case errors.Is(err, output.ErrInvalidConfig):
		return "the server's output configuration is invalid: contact the server operator"
	case errors.Is(err, output.ErrWriteFailed):
		return "file write failed: try again or force inline output"
	}

	// For unhandled errors, return a generic message without internal details
	return "output operation failed: an unexpected error occurred"
}

package tools

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
	"github.com/marketbridge/mcp-marketdata/internal/server"
)

func TestFormatOutputError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string // Substrings that should be in the result
	}{
		{
			name:     "nil error",
			err:      nil,
			contains: []string{},
		},
		{
			name: "SecurityError",
			err: &output.SecurityError{
				Path:   "../../etc/passwd",
				Root:   "/var/lib/marketdata",
				Reason: "path escapes root",
			},
			contains: []string{"path rejected", "output root"},
		},
		{
			name: "PermissionError",
			err: &output.PermissionError{
				Dir:  "/var/lib/marketdata/q3",
				Need: "read+write",
			},
			contains: []string{"not writable", "permissions"},
		},
		{
			name: "InvalidArgumentError keeps caller detail",
			err: &output.InvalidArgumentError{
				Reason: "force_inline and force_file are mutually exclusive",
			},
			contains: []string{"force_inline", "force_file", "mutually exclusive"},
		},
		{
			name: "EstimationError",
			err: &output.EstimationError{
				Reason: "row 12 contains an unserializable value",
			},
			contains: []string{"serialized", "row 12"},
		},
		{
			name: "ConfigurationError",
			err: &output.ConfigurationError{
				Field: "root_dir",
				Value: "relative/path",
				Hint:  "use an absolute path",
			},
			contains: []string{"configuration is invalid", "operator"},
		},
		{
			name: "FileWriteError",
			err: &output.FileWriteError{
				Path:     "/var/lib/marketdata/q3/quotes.csv",
				Attempts: 3,
				Err:      errors.New("disk full"),
			},
			contains: []string{"3 attempts", "inline"},
		},
		{
			name:     "ErrPathEscapesRoot sentinel",
			err:      output.ErrPathEscapesRoot,
			contains: []string{"path rejected"},
		},
		{
			name:     "ErrPermissionDenied sentinel",
			err:      output.ErrPermissionDenied,
			contains: []string{"not writable"},
		},
		{
			name:     "ErrEstimationFailed sentinel",
			err:      output.ErrEstimationFailed,
			contains: []string{"serialized"},
		},
		{
			name:     "ErrWriteFailed sentinel",
			err:      output.ErrWriteFailed,
			contains: []string{"write failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatOutputError(tt.err)

			if tt.err == nil {
				if result != "" {
					t.Errorf("FormatOutputError(nil) = %q, want empty string", result)
				}
				return
			}

			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("FormatOutputError() = %q, want it to contain %q", result, substr)
				}
			}
		})
	}
}

func TestFormatOutputError_DoesNotLeakPaths(t *testing.T) {
	// Messages for security and permission failures must not expose
	// server-side directory layout to the MCP client.
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "SecurityError hides root",
			err: &output.SecurityError{
				Path:   "/home/svc/.ssh/authorized_keys",
				Root:   "/var/lib/marketdata",
				Reason: "absolute path outside root",
			},
		},
		{
			name: "PermissionError hides directory",
			err: &output.PermissionError{
				Dir:  "/var/lib/marketdata/locked",
				Need: "read+write",
			},
		},
		{
			name: "ConfigurationError hides value",
			err: &output.ConfigurationError{
				Field: "root_dir",
				Value: "/etc/secret-mount",
				Hint:  "use an absolute path",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatOutputError(tt.err)
			if strings.Contains(result, "/var/lib") || strings.Contains(result, "/etc") || strings.Contains(result, "/home") {
				t.Errorf("FormatOutputError() leaked a server path: %q", result)
			}
		})
	}
}

func TestFormatOutputError_GenericFallback(t *testing.T) {
	// Unhandled errors must not leak internal details into the tool response.
	customErr := fmt.Errorf("internal database connection failed: host=10.0.0.5 password=secret123")

	result := FormatOutputError(customErr)

	if strings.Contains(result, "database") {
		t.Errorf("Generic error should not leak 'database', got: %s", result)
	}
	if strings.Contains(result, "10.0.0.5") {
		t.Errorf("Generic error should not leak IP address, got: %s", result)
	}
	if strings.Contains(result, "secret123") {
		t.Errorf("Generic error should not leak password, got: %s", result)
	}

	expectedMsg := "output operation failed: an unexpected error occurred"
	if result != expectedMsg {
		t.Errorf("Expected generic message %q, got %q", expectedMsg, result)
	}
}

func TestFormatUpstreamError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "nil error",
			err:      nil,
			contains: []string{},
		},
		{
			name:     "unauthorized",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusUnauthorized, RequestID: "req-1"},
			contains: []string{"authentication failed", "API key"},
		},
		{
			name:     "forbidden",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusForbidden, RequestID: "req-2"},
			contains: []string{"authentication failed"},
		},
		{
			name:     "rate limited",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusTooManyRequests, RequestID: "req-3"},
			contains: []string{"rate limit"},
		},
		{
			name:     "not found",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusNotFound, RequestID: "req-4"},
			contains: []string{"no upstream data"},
		},
		{
			name:     "server error",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusBadGateway, RequestID: "req-5"},
			contains: []string{"upstream service error", "502"},
		},
		{
			name:     "other status",
			err:      &marketdata.UpstreamError{StatusCode: http.StatusConflict, RequestID: "req-6"},
			contains: []string{"status 409"},
		},
		{
			name:     "validation error keeps detail",
			err:      fmt.Errorf("%w: quotes request needs at least one symbol", marketdata.ErrInvalidRequest),
			contains: []string{"at least one symbol"},
		},
		{
			name:     "generic transport error",
			err:      errors.New("dial tcp 10.0.0.5:443: connect: connection refused"),
			contains: []string{"could not be reached"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatUpstreamError(tt.err)

			if tt.err == nil {
				if result != "" {
					t.Errorf("FormatUpstreamError(nil) = %q, want empty string", result)
				}
				return
			}

			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("FormatUpstreamError() = %q, want it to contain %q", result, substr)
				}
			}
		})
	}
}

func TestIsUpstreamAuthError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"unauthorized", &marketdata.UpstreamError{StatusCode: http.StatusUnauthorized}, true},
		{"forbidden", &marketdata.UpstreamError{StatusCode: http.StatusForbidden}, true},
		{"server error", &marketdata.UpstreamError{StatusCode: http.StatusBadGateway}, false},
		{"wrapped auth error", fmt.Errorf("query: %w", &marketdata.UpstreamError{StatusCode: http.StatusUnauthorized}), true},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUpstreamAuthError(tt.err); got != tt.expected {
				t.Errorf("IsUpstreamAuthError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetMarketDataClient(t *testing.T) {
	t.Run("returns the configured client", func(t *testing.T) {
		sc := createTestServerContext(t, nil)

		client, err := GetMarketDataClient(sc)
		if err != nil {
			t.Fatalf("GetMarketDataClient() error = %v", err)
		}
		if client == nil {
			t.Fatal("GetMarketDataClient() returned nil client")
		}
	})

	t.Run("refuses after shutdown", func(t *testing.T) {
		sc := createTestServerContext(t, nil)
		if err := sc.Shutdown(); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}

		_, err := GetMarketDataClient(sc)
		if !errors.Is(err, server.ErrServerShutdown) {
			t.Errorf("GetMarketDataClient() error = %v, want ErrServerShutdown", err)
		}
	})
}

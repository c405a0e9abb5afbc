package tools

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/server"
)

// EmptyRequest represents a request with no parameters.
// Used by tools that don't require any input arguments.
type EmptyRequest struct{}

// GetMarketDataClient returns the upstream market-data client from the
// server context, refusing once shutdown has begun so in-flight tool calls
// fail fast instead of racing the teardown.
//
// Tool handlers should use this function instead of calling
// sc.MarketDataClient() directly.
//
// # Error Handling
//
// Returns (nil, error) when:
//   - The server is shutting down (server.ErrServerShutdown)
//   - No client was configured (server.ErrMissingClient)
//
// Returns (client, nil) on success.
func GetMarketDataClient(sc *server.ServerContext) (marketdata.Client, error) {
	if sc.IsShutdown() {
		return nil, server.ErrServerShutdown
	}
	client := sc.MarketDataClient()
	if client == nil {
		return nil, server.ErrMissingClient
	}
	return client, nil
}

// IsUpstreamAuthError returns true if the error is an upstream credential
// failure. This can be used to distinguish bad API keys from other upstream
// errors.
func IsUpstreamAuthError(err error) bool {
	var upstreamErr *marketdata.UpstreamError
	if !errors.As(err, &upstreamErr) {
		return false
	}
	return upstreamErr.StatusCode == http.StatusUnauthorized ||
		upstreamErr.StatusCode == http.StatusForbidden
}

// FormatUpstreamError returns a user-friendly error message for upstream
// query failures. Status-specific hints cover the cases a caller can act
// on; everything else gets a generic message that does not leak request
// internals.
func FormatUpstreamError(err error) string {
	if err == nil {
		return ""
	}

	var upstreamErr *marketdata.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch {
		case upstreamErr.StatusCode == http.StatusUnauthorized,
			upstreamErr.StatusCode == http.StatusForbidden:
			return "upstream authentication failed: check the configured API key"
		case upstreamErr.StatusCode == http.StatusTooManyRequests:
			return "upstream rate limit exceeded: retry after a short pause"
		case upstreamErr.StatusCode == http.StatusNotFound:
			return "no upstream data found for the requested symbol"
		case upstreamErr.StatusCode >= http.StatusInternalServerError:
			return fmt.Sprintf("upstream service error (status %d): try again later", upstreamErr.StatusCode)
		}
		return fmt.Sprintf("upstream request failed with status %d", upstreamErr.StatusCode)
	}

	// Validation failures carry the field-level detail the caller needs.
	if errors.Is(err, marketdata.ErrInvalidRequest) {
		return err.Error()
	}

	return "upstream request failed: the market-data service could not be reached"
}

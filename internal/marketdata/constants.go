package marketdata

import "time"

const (
	// Upstream API endpoint paths
	pathQuotes       = "/v1/quotes"
	pathHistory      = "/v1/history"
	pathFundamentals = "/v1/fundamentals"
	pathSearch       = "/v1/search"
	pathStatus       = "/v1/status"

	// Default performance settings
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 * time.Second

	// maxErrorBodyBytes caps how much of an upstream error body is kept
	// in error messages.
	maxErrorBodyBytes = 4096
)

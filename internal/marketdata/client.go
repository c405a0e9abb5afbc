package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// Client defines the interface for upstream market-data operations.
// Implementations return results as output datasets so the decision engine
// can process them without knowing where they came from.
type Client interface {
	// Query executes a market-data request and returns the result rows.
	Query(ctx context.Context, req Request) (*output.Dataset, error)

	// Ping verifies upstream connectivity and credentials.
	Ping(ctx context.Context) error
}

// ErrInvalidRequest marks request validation failures. Check with errors.Is.
var ErrInvalidRequest = errors.New("invalid market-data request")

// RequestKind discriminates the request union.
type RequestKind string

// Request kinds supported by the upstream API.
const (
	KindQuotes       RequestKind = "quotes"
	KindHistory      RequestKind = "history"
	KindFundamentals RequestKind = "fundamentals"
	KindSearch       RequestKind = "search"
)

// Bar intervals accepted by history requests.
var validIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "1d": true, "1wk": true, "1mo": true,
}

// Lookback ranges accepted by history requests.
var validRanges = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "max": true,
}

// Financial statements accepted by fundamentals requests.
var validStatements = map[string]bool{
	"income": true, "balance": true, "cashflow": true,
}

// Defaults applied by clients when a history or fundamentals field is empty.
const (
	DefaultInterval  = "1d"
	DefaultRange     = "1mo"
	DefaultStatement = "income"
)

// Request is a tagged union over the four upstream query shapes. Kind selects
// which fields are meaningful; Validate enforces the per-kind rules.
type Request struct {
	// Kind selects the request shape.
	Kind RequestKind `json:"kind"`

	// Symbols is the ticker list for quotes requests.
	Symbols []string `json:"symbols,omitempty"`

	// Symbol is the single ticker for history and fundamentals requests.
	Symbol string `json:"symbol,omitempty"`

	// Interval and Range shape history requests. Empty values get
	// DefaultInterval and DefaultRange.
	Interval string `json:"interval,omitempty"`
	Range    string `json:"range,omitempty"`

	// Statement selects the report for fundamentals requests. Empty gets
	// DefaultStatement.
	Statement string `json:"statement,omitempty"`

	// Query is the free-text term for search requests.
	Query string `json:"query,omitempty"`
}

// Validate checks the request against its kind's rules. Optional fields may
// be empty; present values must come from the accepted sets.
func (r Request) Validate() error {
	switch r.Kind {
	case KindQuotes:
		if len(r.Symbols) == 0 {
			return fmt.Errorf("%w: quotes request needs at least one symbol", ErrInvalidRequest)
		}
		for _, s := range r.Symbols {
			if s == "" {
				return fmt.Errorf("%w: quotes request contains an empty symbol", ErrInvalidRequest)
			}
		}
	case KindHistory:
		if r.Symbol == "" {
			return fmt.Errorf("%w: history request needs a symbol", ErrInvalidRequest)
		}
		if r.Interval != "" && !validIntervals[r.Interval] {
			return fmt.Errorf("%w: unknown interval %q", ErrInvalidRequest, r.Interval)
		}
		if r.Range != "" && !validRanges[r.Range] {
			return fmt.Errorf("%w: unknown range %q", ErrInvalidRequest, r.Range)
		}
	case KindFundamentals:
		if r.Symbol == "" {
			return fmt.Errorf("%w: fundamentals request needs a symbol", ErrInvalidRequest)
		}
		if r.Statement != "" && !validStatements[r.Statement] {
			return fmt.Errorf("%w: unknown statement %q", ErrInvalidRequest, r.Statement)
		}
	case KindSearch:
		if r.Query == "" {
			return fmt.Errorf("%w: search request needs a query", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// UpstreamError reports a non-success response from the market-data API.
// The request ID ties the failure back to upstream logs.
type UpstreamError struct {
	// StatusCode is the HTTP status the upstream returned.
	StatusCode int

	// RequestID is the X-Request-ID sent with the failed request.
	RequestID string

	// Message is the upstream error body, truncated for logging.
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request %s failed with status %d: %s", e.RequestID, e.StatusCode, e.Message)
}

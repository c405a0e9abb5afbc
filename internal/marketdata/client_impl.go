package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/marketbridge/mcp-marketdata/internal/output"
	"github.com/marketbridge/mcp-marketdata/internal/retry"
)

// httpClient implements the Client interface over the upstream JSON API.
type httpClient struct {
	// Configuration
	config *ClientConfig

	// baseURL is the configured base URL without a trailing slash.
	baseURL string

	httpc   *http.Client
	limiter *rate.Limiter
	retry   retry.Config
}

// ClientConfig holds configuration for the upstream market-data client.
type ClientConfig struct {
	// BaseURL is the upstream API root, e.g. https://api.marketdata.example.com.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Performance settings
	QPSLimit   float64
	BurstLimit int
	Timeout    time.Duration

	// Debug settings
	DebugMode bool

	// Logging
	Logger Logger
}

// Logger interface for client logging (simple version for now).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NewClient creates a new upstream client with the given configuration.
func NewClient(config *ClientConfig) (*httpClient, error) {
	if config == nil {
		return nil, fmt.Errorf("client configuration is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}

	// Set defaults
	if config.QPSLimit == 0 {
		config.QPSLimit = DefaultQPSLimit
	}
	if config.BurstLimit == 0 {
		config.BurstLimit = DefaultBurstLimit
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &httpClient{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpc:   &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.QPSLimit), config.BurstLimit),
		retry:   retry.DefaultConfig(),
	}, nil
}

// Wire payloads returned by the upstream API.
type (
	quotesPayload struct {
		Quotes []map[string]any `json:"quotes"`
	}
	historyPayload struct {
		Symbol string           `json:"symbol"`
		Bars   []map[string]any `json:"bars"`
	}
	fundamentalsPayload struct {
		Symbol       string         `json:"symbol"`
		Statement    string         `json:"statement"`
		Fundamentals map[string]any `json:"fundamentals"`
	}
	searchPayload struct {
		Results []map[string]any `json:"results"`
	}
)

// Query executes a market-data request and returns the result rows.
func (c *httpClient) Query(ctx context.Context, req Request) (*output.Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// One request ID across all attempts ties retries together in
	// upstream logs.
	requestID := uuid.NewString()
	target, err := c.requestURL(req)
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case KindQuotes:
		var payload quotesPayload
		if err := c.getJSON(ctx, target, requestID, &payload); err != nil {
			return nil, err
		}
		return output.NewTabularDataset(toRecords(payload.Quotes)), nil
	case KindHistory:
		var payload historyPayload
		if err := c.getJSON(ctx, target, requestID, &payload); err != nil {
			return nil, err
		}
		return output.NewTabularDataset(toRecords(payload.Bars)), nil
	case KindFundamentals:
		var payload fundamentalsPayload
		if err := c.getJSON(ctx, target, requestID, &payload); err != nil {
			return nil, err
		}
		return output.NewValueDataset(payload.Fundamentals), nil
	case KindSearch:
		var payload searchPayload
		if err := c.getJSON(ctx, target, requestID, &payload); err != nil {
			return nil, err
		}
		return output.NewTabularDataset(toRecords(payload.Results)), nil
	default:
		return nil, fmt.Errorf("%w: unknown request kind %q", ErrInvalidRequest, req.Kind)
	}
}

// Ping verifies upstream connectivity and credentials with a single
// unretried status request.
func (c *httpClient) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathStatus, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, requestID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("upstream ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &UpstreamError{
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	return nil
}

// requestURL builds the upstream URL for a validated request, applying the
// documented defaults for empty optional fields.
func (c *httpClient) requestURL(req Request) (string, error) {
	q := url.Values{}
	var path string

	switch req.Kind {
	case KindQuotes:
		path = pathQuotes
		q.Set("symbols", strings.Join(req.Symbols, ","))
	case KindHistory:
		path = pathHistory
		q.Set("symbol", req.Symbol)
		interval := req.Interval
		if interval == "" {
			interval = DefaultInterval
		}
		lookback := req.Range
		if lookback == "" {
			lookback = DefaultRange
		}
		q.Set("interval", interval)
		q.Set("range", lookback)
	case KindFundamentals:
		path = pathFundamentals
		q.Set("symbol", req.Symbol)
		statement := req.Statement
		if statement == "" {
			statement = DefaultStatement
		}
		q.Set("statement", statement)
	case KindSearch:
		path = pathSearch
		q.Set("q", req.Query)
	default:
		return "", fmt.Errorf("%w: unknown request kind %q", ErrInvalidRequest, req.Kind)
	}

	return c.baseURL + path + "?" + q.Encode(), nil
}

// getJSON fetches the target URL with rate limiting and bounded retries,
// then decodes the response body into out.
func (c *httpClient) getJSON(ctx context.Context, target, requestID string, out any) error {
	body, err := retry.DoWithResult(ctx, c.retry, func(attempt int) ([]byte, error) {
		// Each attempt takes a limiter token so retries cannot exceed
		// the configured upstream rate.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if c.config.DebugMode && c.config.Logger != nil {
			c.config.Logger.Debug("upstream request",
				"request_id", requestID, "attempt", attempt)
		}
		return c.fetch(ctx, target, requestID)
	})
	if err != nil {
		var te retry.TransientError
		if errors.As(err, &te) {
			return te.Err
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding upstream response: %w", err)
	}
	return nil
}

// fetch performs one HTTP attempt. Network failures and retriable statuses
// come back marked transient; other statuses are permanent upstream errors.
func (c *httpClient) fetch(ctx context.Context, target, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, requestID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Transient(err)
		}
		return data, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	upErr := &UpstreamError{
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
		Message:    strings.TrimSpace(string(msg)),
	}
	if retriableStatus(resp.StatusCode) {
		return nil, retry.Transient(upErr)
	}
	return nil, upErr
}

// setHeaders applies the standard request headers.
func (c *httpClient) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

// retriableStatus reports whether an upstream status is worth retrying.
func retriableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// toRecords converts decoded JSON rows into output records.
func toRecords(rows []map[string]any) []output.Record {
	records := make([]output.Record, len(rows))
	for i, row := range rows {
		records[i] = output.Record(row)
	}
	return records
}

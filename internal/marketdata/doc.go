// Package marketdata provides the interface and HTTP implementation for the
// upstream financial-data API.
//
// The Client interface is the boundary the MCP tools talk to: a single Query
// method over a tagged-union Request, plus Ping for health checks. Results
// come back as output datasets so the decision engine can process them
// without knowing their origin.
//
// Request kinds map to the upstream endpoints:
//
//   - quotes: latest quotes for a list of symbols
//   - history: OHLCV bars for one symbol over an interval and range
//   - fundamentals: one financial statement for a symbol
//   - search: free-text symbol lookup
//
// The HTTP implementation rate-limits requests, retries transient failures
// with exponential backoff, and stamps every request with an X-Request-ID so
// failures can be correlated with upstream logs. Credentials travel as a
// bearer token; nothing is read from ambient environment state.
//
// Example usage:
//
//	client, err := marketdata.NewClient(&marketdata.ClientConfig{
//		BaseURL: "https://api.marketdata.example.com",
//		APIKey:  apiKey,
//	})
//	if err != nil {
//		return err
//	}
//
//	ds, err := client.Query(ctx, marketdata.Request{
//		Kind:    marketdata.KindQuotes,
//		Symbols: []string{"AAPL", "MSFT"},
//	})
//	if err != nil {
//		return err
//	}
//
// FakeClient provides a canned-response implementation for handler tests.
package marketdata

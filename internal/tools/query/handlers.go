package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
	"github.com/marketbridge/mcp-marketdata/internal/server"
	"github.com/marketbridge/mcp-marketdata/internal/tools"
)

// handleGetQuotes handles quote lookups for one or more symbols.
func handleGetQuotes(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req, errResult := quotesRequest(args)
	if errResult != nil {
		return errResult, nil
	}

	return executeQuery(ctx, sc, "marketdata_get_quotes", req, args)
}

// handleGetHistory handles historical price bar lookups.
func handleGetHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req, errResult := historyRequest(args)
	if errResult != nil {
		return errResult, nil
	}

	return executeQuery(ctx, sc, "marketdata_get_history", req, args)
}

// handleGetFundamentals handles financial statement lookups.
func handleGetFundamentals(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req, errResult := fundamentalsRequest(args)
	if errResult != nil {
		return errResult, nil
	}

	return executeQuery(ctx, sc, "marketdata_get_fundamentals", req, args)
}

// handleSearchSymbols handles free-text symbol searches.
func handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req, errResult := searchRequest(args)
	if errResult != nil {
		return errResult, nil
	}

	return executeQuery(ctx, sc, "marketdata_search_symbols", req, args)
}

// handleEstimateOutput runs a query and reports the routing decision without
// writing anything to disk.
func handleEstimateOutput(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req, errResult := buildRequest(args)
	if errResult != nil {
		return errResult, nil
	}

	client, err := tools.GetMarketDataClient(sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ds, errResult := fetchDataset(ctx, sc, client, req)
	if errResult != nil {
		return errResult, nil
	}
	if ds == nil || ds.Empty() {
		return mcp.NewToolResultText("No matching data was returned upstream."), nil
	}

	opts := output.DecideOptions{}
	opts.Format, _ = args["format"].(string)
	opts.FilenamePrefix, _ = args["filename_prefix"].(string)

	cfg := sc.Engine().Config().Clone()
	if compress, ok := args["compress"].(bool); ok {
		cfg.Compression = compress
	}

	start := time.Now()
	decision, err := sc.Engine().Decide(ds, cfg, opts)
	if err != nil {
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}

	if provider := sc.InstrumentationProvider(); provider != nil {
		provider.Metrics().RecordEstimate(ctx, decision.RowCount, time.Since(start))
	}

	data, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render decision: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

// executeQuery runs one upstream request and routes the dataset through the
// decision engine. All four query tools share this path; they differ only in
// how they build the request.
func executeQuery(ctx context.Context, sc *server.ServerContext, toolName string, req marketdata.Request, args map[string]interface{}) (*mcp.CallToolResult, error) {
	client, err := tools.GetMarketDataClient(sc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts, cfg, refusal := outputOptions(sc, args)
	if refusal != nil {
		return refusal, nil
	}

	ds, errResult := fetchDataset(ctx, sc, client, req)
	if errResult != nil {
		return errResult, nil
	}
	if ds == nil || ds.Empty() {
		return mcp.NewToolResultText("No matching data was returned upstream."), nil
	}

	// Track the in-flight output operation so shutdown can drain it.
	writeID := uuid.NewString()
	sc.RegisterActiveWrite(writeID, &server.ActiveWrite{
		Tool:      toolName,
		Project:   cfg.ProjectName,
		Format:    resolvedFormat(cfg, opts),
		StartedAt: time.Now(),
	})
	defer sc.UnregisterActiveWrite(writeID)

	provider := sc.InstrumentationProvider()
	if provider != nil {
		provider.Metrics().IncrementActiveWrites(ctx)
		defer provider.Metrics().DecrementActiveWrites(ctx)
	}

	processStart := time.Now()
	result, err := sc.Engine().Process(ctx, ds, cfg, opts)
	if err != nil {
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}

	recordOutcome(ctx, sc, result, cfg, time.Since(processStart))

	envelope, err := result.EnvelopeJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render response envelope: %w", err)
	}

	return mcp.NewToolResultText(envelope), nil
}

// outputOptions builds the per-call decision options and a working copy of
// the engine configuration from the request arguments, applying the server's
// access policy. A non-nil refusal means the call must not proceed.
func outputOptions(sc *server.ServerContext, args map[string]interface{}) (output.DecideOptions, *output.Config, *mcp.CallToolResult) {
	opts := output.DecideOptions{}
	opts.ForceInline, _ = args["force_inline"].(bool)
	opts.ForceFile, _ = args["force_file"].(bool)
	opts.Format, _ = args["format"].(string)
	opts.FilenamePrefix, _ = args["filename_prefix"].(string)

	cfg := sc.Engine().Config().Clone()
	if compress, ok := args["compress"].(bool); ok {
		cfg.Compression = compress
	}

	project, _ := args["project"].(string)
	if project == "" {
		if serverCfg := sc.Config(); serverCfg != nil {
			project = serverCfg.DefaultProject
		}
	}
	if refusal := tools.CheckProjectAccess(sc, project); refusal != nil {
		return opts, nil, refusal
	}
	cfg.ProjectName = project

	// Read-only servers never write files: an explicit force_file is
	// refused, everything else is pinned to inline output.
	if sc.IsReadOnly() {
		if opts.ForceFile {
			return opts, nil, tools.CheckMutatingOperation(sc, "save")
		}
		opts.ForceInline = true
		opts.ForceFile = false
	}

	return opts, cfg, nil
}

// fetchDataset queries the upstream API inside a span and records the
// request metric. On failure it returns a tool error result with a
// user-facing message.
func fetchDataset(ctx context.Context, sc *server.ServerContext, client marketdata.Client, req marketdata.Request) (*output.Dataset, *mcp.CallToolResult) {
	kind := string(req.Kind)
	ctx, span := instrumentation.StartUpstreamSpan(ctx, kind, primarySymbol(req))
	defer span.End()

	start := time.Now()
	ds, err := client.Query(ctx, req)
	elapsed := time.Since(start)

	upstreamResult := instrumentation.UpstreamResultSuccess
	if err != nil {
		upstreamResult = instrumentation.UpstreamResultError
		var upstreamErr *marketdata.UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusTooManyRequests {
			upstreamResult = instrumentation.UpstreamResultRateLimited
		}
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	if provider := sc.InstrumentationProvider(); provider != nil {
		provider.Metrics().RecordUpstreamRequest(ctx, kind, upstreamResult, elapsed)
	}

	if err != nil {
		return nil, mcp.NewToolResultError(tools.FormatUpstreamError(err))
	}

	return ds, nil
}

// recordOutcome updates the server counters and domain metrics for one
// processed result.
func recordOutcome(ctx context.Context, sc *server.ServerContext, result *output.Result, cfg *output.Config, elapsed time.Duration) {
	stats := sc.Stats()
	if stats != nil {
		if result.File != nil {
			stats.IncrementFilesWritten(result.File.Size)
		} else {
			stats.IncrementInlineResponses()
		}
	}

	provider := sc.InstrumentationProvider()
	if provider == nil {
		return
	}
	metrics := provider.Metrics()

	verdict := instrumentation.VerdictInline
	if result.Decision.UseFile {
		verdict = instrumentation.VerdictFile
	}
	metrics.RecordDecision(ctx, verdict, result.Decision.Format, result.Decision.RowCount)

	if result.File != nil {
		metrics.RecordFileWrite(ctx, cfg.ProjectName, result.File.Format, result.File.Size, elapsed)
	}
}

// quotesRequest builds an upstream request for current quotes.
func quotesRequest(args map[string]interface{}) (marketdata.Request, *mcp.CallToolResult) {
	symbols := stringSlice(args["symbols"])
	if len(symbols) == 0 {
		return marketdata.Request{}, mcp.NewToolResultError("symbols is required and must be a non-empty array of strings")
	}

	return marketdata.Request{Kind: marketdata.KindQuotes, Symbols: symbols}, nil
}

// historyRequest builds an upstream request for historical bars.
func historyRequest(args map[string]interface{}) (marketdata.Request, *mcp.CallToolResult) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return marketdata.Request{}, mcp.NewToolResultError("symbol is required")
	}

	interval, _ := args["interval"].(string)
	barRange, _ := args["range"].(string)

	return marketdata.Request{
		Kind:     marketdata.KindHistory,
		Symbol:   symbol,
		Interval: interval,
		Range:    barRange,
	}, nil
}

// fundamentalsRequest builds an upstream request for financial statements.
func fundamentalsRequest(args map[string]interface{}) (marketdata.Request, *mcp.CallToolResult) {
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		return marketdata.Request{}, mcp.NewToolResultError("symbol is required")
	}

	statement, _ := args["statement"].(string)

	return marketdata.Request{
		Kind:      marketdata.KindFundamentals,
		Symbol:    symbol,
		Statement: statement,
	}, nil
}

// searchRequest builds an upstream request for a symbol search.
func searchRequest(args map[string]interface{}) (marketdata.Request, *mcp.CallToolResult) {
	query, _ := args["query"].(string)
	if query == "" {
		return marketdata.Request{}, mcp.NewToolResultError("query is required")
	}

	return marketdata.Request{Kind: marketdata.KindSearch, Query: query}, nil
}

// buildRequest assembles the request union for the estimate tool from the
// kind discriminator and its per-kind arguments.
func buildRequest(args map[string]interface{}) (marketdata.Request, *mcp.CallToolResult) {
	kind, _ := args["kind"].(string)

	switch marketdata.RequestKind(kind) {
	case marketdata.KindQuotes:
		return quotesRequest(args)
	case marketdata.KindHistory:
		return historyRequest(args)
	case marketdata.KindFundamentals:
		return fundamentalsRequest(args)
	case marketdata.KindSearch:
		return searchRequest(args)
	}

	return marketdata.Request{}, mcp.NewToolResultError(
		fmt.Sprintf("unknown request kind %q: use quotes, history, fundamentals, or search", kind))
}

// stringSlice converts a JSON array argument into a slice of non-empty strings.
func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	return out
}

// primarySymbol returns the request's leading symbol for span attribution.
func primarySymbol(req marketdata.Request) string {
	if req.Symbol != "" {
		return req.Symbol
	}
	if len(req.Symbols) > 0 {
		return req.Symbols[0]
	}
	return req.Query
}

// resolvedFormat reports the output format a call will serialize with.
func resolvedFormat(cfg *output.Config, opts output.DecideOptions) string {
	if opts.Format != "" {
		return opts.Format
	}
	return cfg.DefaultFormat
}

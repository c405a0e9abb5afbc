package query

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/marketbridge/mcp-marketdata/internal/server"
	"github.com/marketbridge/mcp-marketdata/internal/tools"
)

// RegisterQueryTools registers all market-data query tools with the MCP server
func RegisterQueryTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// Output routing parameters shared by every query tool
	outputParams := tools.AddOutputParams(sc)

	// marketdata_get_quotes tool
	quotesOpts := []mcp.ToolOption{
		mcp.WithDescription("Get current quote data for one or more ticker symbols. " +
			"Small result sets are returned inline; large ones are written to a file under the output root and referenced in the response."),
		mcp.WithArray("symbols",
			mcp.Required(),
			mcp.Description("Ticker symbols to look up (e.g., [\"AAPL\", \"MSFT\"])"),
		),
	}
	quotesOpts = append(quotesOpts, outputParams...)
	quotesTool := mcp.NewTool("marketdata_get_quotes", quotesOpts...)

	s.AddTool(quotesTool, tools.WrapWithAuditLogging("marketdata_get_quotes", handleGetQuotes, sc))

	// marketdata_get_history tool
	historyOpts := []mcp.ToolOption{
		mcp.WithDescription("Get historical price bars for a ticker symbol. " +
			"Long histories typically exceed the inline threshold and are written to a file."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Ticker symbol to fetch history for (e.g., \"AAPL\")"),
		),
		mcp.WithString("interval",
			mcp.Description("Bar interval (optional, upstream default applies when omitted)"),
			mcp.Enum("1m", "5m", "15m", "30m", "1h", "1d", "1wk", "1mo"),
		),
		mcp.WithString("range",
			mcp.Description("Lookback range (optional, upstream default applies when omitted)"),
			mcp.Enum("1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "max"),
		),
	}
	historyOpts = append(historyOpts, outputParams...)
	historyTool := mcp.NewTool("marketdata_get_history", historyOpts...)

	s.AddTool(historyTool, tools.WrapWithAuditLogging("marketdata_get_history", handleGetHistory, sc))

	// marketdata_get_fundamentals tool
	fundamentalsOpts := []mcp.ToolOption{
		mcp.WithDescription("Get fundamental financial statements for a ticker symbol."),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Ticker symbol to fetch fundamentals for (e.g., \"AAPL\")"),
		),
		mcp.WithString("statement",
			mcp.Description("Statement type to fetch (optional, all statements when omitted)"),
			mcp.Enum("income", "balance", "cashflow"),
		),
	}
	fundamentalsOpts = append(fundamentalsOpts, outputParams...)
	fundamentalsTool := mcp.NewTool("marketdata_get_fundamentals", fundamentalsOpts...)

	s.AddTool(fundamentalsTool, tools.WrapWithAuditLogging("marketdata_get_fundamentals", handleGetFundamentals, sc))

	// marketdata_search_symbols tool
	searchOpts := []mcp.ToolOption{
		mcp.WithDescription("Search for ticker symbols by company name or keyword."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free-text search term (e.g., \"semiconductor\")"),
		),
	}
	searchOpts = append(searchOpts, outputParams...)
	searchTool := mcp.NewTool("marketdata_search_symbols", searchOpts...)

	s.AddTool(searchTool, tools.WrapWithAuditLogging("marketdata_search_symbols", handleSearchSymbols, sc))

	// marketdata_estimate_output tool
	estimateOpts := []mcp.ToolOption{
		mcp.WithDescription("Preview the output decision for a query without writing anything. " +
			"Reports the estimated token count, row count, and whether the result would be returned inline or as a file."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Request kind to estimate"),
			mcp.Enum("quotes", "history", "fundamentals", "search"),
		),
		mcp.WithArray("symbols",
			mcp.Description("Ticker symbols (quotes requests)"),
		),
		mcp.WithString("symbol",
			mcp.Description("Ticker symbol (history and fundamentals requests)"),
		),
		mcp.WithString("interval",
			mcp.Description("Bar interval (history requests)"),
			mcp.Enum("1m", "5m", "15m", "30m", "1h", "1d", "1wk", "1mo"),
		),
		mcp.WithString("range",
			mcp.Description("Lookback range (history requests)"),
			mcp.Enum("1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "max"),
		),
		mcp.WithString("statement",
			mcp.Description("Statement type (fundamentals requests)"),
			mcp.Enum("income", "balance", "cashflow"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text search term (search requests)"),
		),
		mcp.WithString("format",
			mcp.Description("Serialization format to estimate for (optional, server default when omitted)"),
			mcp.Enum("csv", "json"),
		),
		mcp.WithBoolean("compress",
			mcp.Description("Estimate with gzip compression enabled (optional)"),
		),
		mcp.WithString("filename_prefix",
			mcp.Description("Prefix for the suggested filename (optional)"),
		),
	}
	estimateTool := mcp.NewTool("marketdata_estimate_output", estimateOpts...)

	s.AddTool(estimateTool, tools.WrapWithAuditLogging("marketdata_estimate_output", handleEstimateOutput, sc))

	return nil
}

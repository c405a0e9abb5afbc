// Package query provides tests for the market-data query handlers.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
	"github.com/marketbridge/mcp-marketdata/internal/server"
)

// newTestContext builds a server context backed by a fake upstream client
// and a temp output root. Pass cfg to tune engine thresholds; nil uses the
// defaults.
func newTestContext(t *testing.T, cfg *output.Config, opts ...server.Option) (*server.ServerContext, *marketdata.FakeClient, *output.Config) {
	t.Helper()

	if cfg == nil {
		cfg = output.DefaultConfig()
	}
	if cfg.RootDir == "" {
		cfg.RootDir = t.TempDir()
	}

	engine, err := output.NewEngine(cfg, nil, nil, nil)
	require.NoError(t, err)
	store, err := output.NewProjectStore(cfg, nil)
	require.NoError(t, err)

	fake := marketdata.NewFakeClient()
	base := []server.Option{
		server.WithMarketDataClient(fake),
		server.WithEngine(engine),
		server.WithProjectStore(store),
	}
	base = append(base, opts...)

	sc, err := server.NewServerContext(context.Background(), base...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sc.Shutdown()
	})

	return sc, fake, cfg
}

// toolRequest builds a CallToolRequest with the given arguments.
func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	if args == nil {
		args = map[string]interface{}{}
	}
	request := mcp.CallToolRequest{}
	request.Params.Name = "test_tool"
	request.Params.Arguments = args
	return request
}

// resultText extracts the text payload from an MCP result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent in result, got %T", result.Content[0])
	return textContent.Text
}

// envelopeMap parses the response envelope into a generic map.
func envelopeMap(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &envelope))
	return envelope
}

// quoteRecords builds n synthetic quote rows.
func quoteRecords(n int) []output.Record {
	records := make([]output.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, output.Record{
			"symbol": fmt.Sprintf("SYM%03d", i),
			"price":  100.25 + float64(i),
			"volume": 1000000 + i,
		})
	}
	return records
}

func TestHandleGetQuotes_SmallResultStaysInline(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(3)))

	request := toolRequest(map[string]interface{}{
		"symbols": []interface{}{"AAPL", "MSFT"},
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	envelope := envelopeMap(t, result)
	assert.Equal(t, "inline_data", envelope["type"])

	last := fake.LastRequest()
	assert.Equal(t, marketdata.KindQuotes, last.Kind)
	assert.Equal(t, []string{"AAPL", "MSFT"}, last.Symbols)

	_, inline, files, _ := sc.Stats().GetStats()
	assert.Equal(t, int64(1), inline)
	assert.Equal(t, int64(0), files)
}

func TestHandleGetQuotes_MissingSymbols(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{name: "no arguments", args: map[string]interface{}{}},
		{name: "empty array", args: map[string]interface{}{"symbols": []interface{}{}}},
		{name: "wrong type", args: map[string]interface{}{"symbols": "AAPL"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := handleGetQuotes(context.Background(), toolRequest(tc.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), "symbols is required")
		})
	}
}

func TestHandleGetQuotes_ForceFileWritesUnderRoot(t *testing.T) {
	sc, fake, cfg := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(5)))

	request := toolRequest(map[string]interface{}{
		"symbols":    []interface{}{"AAPL"},
		"force_file": true,
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	envelope := envelopeMap(t, result)
	require.Equal(t, "file_reference", envelope["type"])

	relPath, ok := envelope["filepath"].(string)
	require.True(t, ok)
	assert.False(t, filepath.IsAbs(relPath), "filepath must stay relative to the output root")

	_, statErr := os.Stat(filepath.Join(cfg.RootDir, relPath))
	assert.NoError(t, statErr, "referenced file should exist under the output root")

	_, inline, files, bytes := sc.Stats().GetStats()
	assert.Equal(t, int64(0), inline)
	assert.Equal(t, int64(1), files)
	assert.Greater(t, bytes, int64(0))
}

func TestHandleGetHistory_PassesIntervalAndRange(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindHistory, output.NewTabularDataset(quoteRecords(4)))

	request := toolRequest(map[string]interface{}{
		"symbol":   "AAPL",
		"interval": "1d",
		"range":    "1y",
	})

	result, err := handleGetHistory(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	last := fake.LastRequest()
	assert.Equal(t, marketdata.KindHistory, last.Kind)
	assert.Equal(t, "AAPL", last.Symbol)
	assert.Equal(t, "1d", last.Interval)
	assert.Equal(t, "1y", last.Range)
}

func TestHandleGetHistory_MissingSymbol(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	result, err := handleGetHistory(context.Background(), toolRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "symbol is required")
}

func TestHandleGetHistory_InvalidInterval(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	request := toolRequest(map[string]interface{}{
		"symbol":   "AAPL",
		"interval": "7m",
	})

	result, err := handleGetHistory(context.Background(), request, sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "interval")
}

func TestHandleGetFundamentals_PassesStatement(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindFundamentals, output.NewValueDataset(map[string]any{
		"symbol":  "AAPL",
		"revenue": 394328000000.0,
	}))

	request := toolRequest(map[string]interface{}{
		"symbol":    "AAPL",
		"statement": "income",
	})

	result, err := handleGetFundamentals(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	last := fake.LastRequest()
	assert.Equal(t, marketdata.KindFundamentals, last.Kind)
	assert.Equal(t, "income", last.Statement)
}

func TestHandleSearchSymbols_EmptyResult(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil)
	// No canned dataset: the fake returns an empty tabular dataset.

	request := toolRequest(map[string]interface{}{
		"query": "no such company",
	})

	result, err := handleSearchSymbols(context.Background(), request, sc)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No matching data")

	last := fake.LastRequest()
	assert.Equal(t, marketdata.KindSearch, last.Kind)
	assert.Equal(t, "no such company", last.Query)
}

func TestExecuteQuery_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		queryErr error
		want     string
	}{
		{
			name:     "authentication failure",
			queryErr: &marketdata.UpstreamError{StatusCode: 401, Message: "bad key"},
			want:     "authentication failed",
		},
		{
			name:     "rate limited",
			queryErr: &marketdata.UpstreamError{StatusCode: 429, Message: "slow down"},
			want:     "rate limit",
		},
		{
			name:     "server error",
			queryErr: &marketdata.UpstreamError{StatusCode: 503, Message: "maintenance"},
			want:     "try again later",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc, fake, _ := newTestContext(t, nil)
			fake.QueryErr = tc.queryErr

			request := toolRequest(map[string]interface{}{
				"symbols": []interface{}{"AAPL"},
			})

			result, err := handleGetQuotes(context.Background(), request, sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)
		})
	}
}

func TestExecuteQuery_ReadOnlyRefusesForceFile(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil, server.WithReadOnly(true))
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(3)))

	request := toolRequest(map[string]interface{}{
		"symbols":    []interface{}{"AAPL"},
		"force_file": true,
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "read-only mode")
}

func TestExecuteQuery_ReadOnlyPinsInline(t *testing.T) {
	cfg := output.DefaultConfig()
	cfg.TokenThreshold = 10 // every dataset would normally go to a file
	sc, fake, cfg := newTestContext(t, cfg, server.WithReadOnly(true))
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(50)))

	request := toolRequest(map[string]interface{}{
		"symbols": []interface{}{"AAPL"},
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	envelope := envelopeMap(t, result)
	assert.Equal(t, "inline_data", envelope["type"])

	entries, readErr := os.ReadDir(cfg.RootDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "read-only server must not write files")
}

func TestExecuteQuery_RestrictedProject(t *testing.T) {
	sc, fake, _ := newTestContext(t, nil,
		server.WithRestrictedProjects([]string{"compliance"}),
	)
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(3)))

	request := toolRequest(map[string]interface{}{
		"symbols": []interface{}{"AAPL"},
		"project": "compliance",
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "restricted")
}

func TestExecuteQuery_ProjectFolderGroupsFiles(t *testing.T) {
	sc, fake, cfg := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(5)))

	request := toolRequest(map[string]interface{}{
		"symbols":    []interface{}{"AAPL"},
		"force_file": true,
		"project":    "earnings-q3",
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	envelope := envelopeMap(t, result)
	relPath, ok := envelope["filepath"].(string)
	require.True(t, ok)
	assert.Equal(t, "earnings-q3", filepath.Dir(relPath))

	_, statErr := os.Stat(filepath.Join(cfg.RootDir, relPath))
	assert.NoError(t, statErr)
}

func TestExecuteQuery_DefaultProjectFromConfig(t *testing.T) {
	serverCfg := server.NewDefaultConfig()
	serverCfg.DefaultProject = "scratch"

	sc, fake, cfg := newTestContext(t, nil, server.WithConfig(serverCfg))
	fake.SetDataset(marketdata.KindQuotes, output.NewTabularDataset(quoteRecords(5)))

	request := toolRequest(map[string]interface{}{
		"symbols":    []interface{}{"AAPL"},
		"force_file": true,
	})

	result, err := handleGetQuotes(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	envelope := envelopeMap(t, result)
	relPath, ok := envelope["filepath"].(string)
	require.True(t, ok)
	assert.Equal(t, "scratch", filepath.Dir(relPath))

	_, statErr := os.Stat(filepath.Join(cfg.RootDir, relPath))
	assert.NoError(t, statErr)
}

func TestHandleEstimateOutput_ReportsDecisionWithoutWriting(t *testing.T) {
	sc, fake, cfg := newTestContext(t, nil)
	fake.SetDataset(marketdata.KindHistory, output.NewTabularDataset(quoteRecords(10)))

	request := toolRequest(map[string]interface{}{
		"kind":   "history",
		"symbol": "AAPL",
		"range":  "5d",
	})

	result, err := handleEstimateOutput(context.Background(), request, sc)
	require.NoError(t, err)
	require.False(t, result.IsError, "expected success, got: %s", resultText(t, result))

	var decision output.Decision
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decision))
	assert.False(t, decision.UseFile)
	assert.Greater(t, decision.TokenCount, 0)
	assert.Equal(t, 10, decision.RowCount)
	assert.NotEmpty(t, decision.SuggestedFilename)

	entries, readErr := os.ReadDir(cfg.RootDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "estimation must not write files")
}

func TestHandleEstimateOutput_UnknownKind(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	request := toolRequest(map[string]interface{}{
		"kind": "dividends",
	})

	result, err := handleEstimateOutput(context.Background(), request, sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown request kind")
}

func TestHandleEstimateOutput_MissingKindArgument(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	request := toolRequest(map[string]interface{}{
		"kind": "search",
	})

	result, err := handleEstimateOutput(context.Background(), request, sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "query is required")
}

func TestRegisterQueryTools(t *testing.T) {
	sc, _, _ := newTestContext(t, nil)

	s := mcpserver.NewMCPServer("test-server", "0.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterQueryTools(s, sc))
}

package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/marketbridge/mcp-marketdata/internal/config"
	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/marketdata"
	"github.com/marketbridge/mcp-marketdata/internal/output"
	"github.com/marketbridge/mcp-marketdata/internal/server"
	"github.com/marketbridge/mcp-marketdata/internal/tools/files"
	"github.com/marketbridge/mcp-marketdata/internal/tools/query"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	outputDefaults := output.DefaultConfig()

	var (
		configPath string

		// Transport options
		transport       string
		httpAddr        string
		sseEndpoint     string
		messageEndpoint string
		httpEndpoint    string

		// Upstream client options
		upstreamURL           string
		apiKey                string
		upstreamTimeout       time.Duration
		qpsLimit              float64
		burstLimit            int
		allowInsecureUpstream bool
		debugMode             bool

		// Output options
		outputRoot         string
		tokenThreshold     int
		rowThreshold       int
		defaultFormat      string
		compress           bool
		defaultProject     string
		restrictedProjects []string
		readOnly           bool
		tokenizerVocab     string

		// Metrics options
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP market-data server",
		Long: `Start the MCP market-data server to provide quote, history, fundamentals
and symbol search tools via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport

Every query response passes through the output decision engine: small results
are returned inline, large results are written as CSV or JSON files under the
output root and answered with a file reference. Read-only mode (--read-only)
refuses the tools that create or delete files.

Configuration is layered: explicit flags beat MARKETDATA_* environment
variables, which beat the optional YAML config file (--config).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveCfg := ServeConfig{
				Transport:             transport,
				HTTPAddr:              httpAddr,
				SSEEndpoint:           sseEndpoint,
				MessageEndpoint:       messageEndpoint,
				HTTPEndpoint:          httpEndpoint,
				UpstreamBaseURL:       upstreamURL,
				UpstreamAPIKey:        apiKey,
				UpstreamTimeout:       upstreamTimeout,
				QPSLimit:              qpsLimit,
				BurstLimit:            burstLimit,
				AllowInsecureUpstream: allowInsecureUpstream,
				DebugMode:             debugMode,
				DefaultProject:        defaultProject,
				RestrictedProjects:    restrictedProjects,
				ReadOnly:              readOnly,
				TokenizerVocab:        tokenizerVocab,
				Metrics: MetricsServeConfig{
					Enabled: metricsEnabled,
					Addr:    metricsAddr,
				},
			}
			serveCfg.Output = *outputDefaults
			serveCfg.Output.RootDir = outputRoot
			serveCfg.Output.TokenThreshold = tokenThreshold
			serveCfg.Output.RowThreshold = rowThreshold
			serveCfg.Output.DefaultFormat = defaultFormat
			serveCfg.Output.Compression = compress

			// Layer the config file and environment under explicitly set flags
			if err := applyFileConfig(cmd, &serveCfg, configPath); err != nil {
				return err
			}

			// Security warning: CLI key flags may be visible in process listings
			if cmd.Flags().Changed("api-key") {
				log.Printf("WARNING: Upstream API key provided via CLI flag - key may be visible in process listings (ps aux)")
				log.Printf("         For better security, use the MARKETDATA_UPSTREAM_API_KEY environment variable instead")
			}

			return runServe(serveCfg)
		},
	}

	// Add flags for configuring the server
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: config.yaml in . or /etc/mcp-marketdata)")
	cmd.Flags().StringVar(&upstreamURL, "upstream-url", "", "Upstream market-data API base URL (can also be set via MARKETDATA_UPSTREAM_BASE_URL env var)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Upstream API key (can also be set via MARKETDATA_UPSTREAM_API_KEY env var)")
	cmd.Flags().DurationVar(&upstreamTimeout, "upstream-timeout", config.DefaultUpstreamTimeout, "Timeout for upstream API requests")
	cmd.Flags().Float64Var(&qpsLimit, "qps-limit", config.DefaultQPSLimit, "QPS limit for upstream API calls (default: 20.0)")
	cmd.Flags().IntVar(&burstLimit, "burst-limit", config.DefaultBurstLimit, "Burst limit for upstream API calls (default: 30)")
	cmd.Flags().BoolVar(&allowInsecureUpstream, "allow-insecure-upstream", false, "Skip HTTPS and private-address validation of the upstream URL (for local development only)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging (default: false)")

	// Transport flags
	cmd.Flags().StringVar(&transport, "transport", config.DefaultTransport, "Transport type: stdio, sse, or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP server address (for sse and streamable-http transports)")
	cmd.Flags().StringVar(&sseEndpoint, "sse-endpoint", config.DefaultSSEEndpoint, "SSE endpoint path (for sse transport)")
	cmd.Flags().StringVar(&messageEndpoint, "message-endpoint", config.DefaultMessageEndpoint, "Message endpoint path (for sse transport)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", config.DefaultHTTPEndpoint, "HTTP endpoint path (for streamable-http transport)")

	// Output flags
	cmd.Flags().StringVar(&outputRoot, "output-root", "", "Directory output files are written under (default: ~/.mcp-marketdata/output)")
	cmd.Flags().IntVar(&tokenThreshold, "token-threshold", outputDefaults.TokenThreshold, "Estimated token count above which results go to a file")
	cmd.Flags().IntVar(&rowThreshold, "row-threshold", outputDefaults.RowThreshold, "Row count above which results go to a file")
	cmd.Flags().StringVar(&defaultFormat, "format", outputDefaults.DefaultFormat, "Default output file format: csv or json")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip written output files")
	cmd.Flags().StringVar(&defaultProject, "project", "", "Project folder used when a tool call names none")
	cmd.Flags().StringSliceVar(&restrictedProjects, "restricted-project", nil, "Project name every tool must refuse (repeatable)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Refuse tools that create or delete files (default: false)")
	cmd.Flags().StringVar(&tokenizerVocab, "tokenizer-vocab", "", "Path to a WordPiece vocab.txt for exact token counting (can also be set via MARKETDATA_TOKENIZER_VOCAB env var)")

	// Metrics flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "Start the standalone Prometheus metrics server (default: false)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server listen address")

	return cmd
}

// applyFileConfig layers values from the optional YAML config file and the
// MARKETDATA_* environment variables under the serve flags. A flag value only
// wins when the user actually set it, so --transport beats the file while the
// compiled-in default does not.
func applyFileConfig(cmd *cobra.Command, serveCfg *ServeConfig, configPath string) error {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()

	if !flags.Changed("transport") {
		serveCfg.Transport = fileCfg.Server.Transport
	}
	if !flags.Changed("http-addr") {
		serveCfg.HTTPAddr = fileCfg.Server.HTTPAddr
	}
	if !flags.Changed("sse-endpoint") {
		serveCfg.SSEEndpoint = fileCfg.Server.SSEEndpoint
	}
	if !flags.Changed("message-endpoint") {
		serveCfg.MessageEndpoint = fileCfg.Server.MessageEndpoint
	}
	if !flags.Changed("http-endpoint") {
		serveCfg.HTTPEndpoint = fileCfg.Server.HTTPEndpoint
	}
	if !flags.Changed("metrics") {
		serveCfg.Metrics.Enabled = fileCfg.Server.MetricsEnabled
	}
	if !flags.Changed("metrics-addr") {
		serveCfg.Metrics.Addr = fileCfg.Server.MetricsAddr
	}
	if !flags.Changed("read-only") {
		serveCfg.ReadOnly = fileCfg.Server.ReadOnly
	}
	if !flags.Changed("project") {
		serveCfg.DefaultProject = fileCfg.Server.DefaultProject
	}
	if !flags.Changed("restricted-project") {
		serveCfg.RestrictedProjects = fileCfg.Server.RestrictedProjects
	}
	if !flags.Changed("debug") {
		serveCfg.DebugMode = fileCfg.Server.Debug
	}

	if !flags.Changed("upstream-url") {
		serveCfg.UpstreamBaseURL = fileCfg.Upstream.BaseURL
	}
	if !flags.Changed("api-key") {
		serveCfg.UpstreamAPIKey = fileCfg.Upstream.APIKey
	}
	if !flags.Changed("upstream-timeout") {
		serveCfg.UpstreamTimeout = fileCfg.Upstream.Timeout
	}
	if !flags.Changed("qps-limit") {
		serveCfg.QPSLimit = fileCfg.Upstream.QPSLimit
	}
	if !flags.Changed("burst-limit") {
		serveCfg.BurstLimit = fileCfg.Upstream.BurstLimit
	}

	// The output section starts from the file and keeps explicit overrides.
	out := fileCfg.Output
	if flags.Changed("output-root") {
		out.RootDir = serveCfg.Output.RootDir
	}
	if flags.Changed("token-threshold") {
		out.TokenThreshold = serveCfg.Output.TokenThreshold
	}
	if flags.Changed("row-threshold") {
		out.RowThreshold = serveCfg.Output.RowThreshold
	}
	if flags.Changed("format") {
		out.DefaultFormat = serveCfg.Output.DefaultFormat
	}
	if flags.Changed("compress") {
		out.Compression = serveCfg.Output.Compression
	}
	serveCfg.Output = out

	if !flags.Changed("tokenizer-vocab") {
		serveCfg.TokenizerVocab = fileCfg.Tokenizer.Vocab
	}

	return nil
}

// validateServeConfig checks the parts of the configuration that must fail
// fast, before any client or listener is constructed.
func validateServeConfig(config ServeConfig) error {
	switch config.Transport {
	case transportStdio, transportSSE, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", config.Transport)
	}

	if config.UpstreamBaseURL == "" {
		return fmt.Errorf("upstream base URL is required (--upstream-url or MARKETDATA_UPSTREAM_BASE_URL)")
	}
	if !config.AllowInsecureUpstream {
		if err := validateSecureURL(config.UpstreamBaseURL, "upstream base URL"); err != nil {
			return err
		}
	}

	return nil
}

// runServe contains the main server logic with support for multiple transports
func runServe(config ServeConfig) error {
	if err := validateServeConfig(config); err != nil {
		return err
	}

	// Create upstream market-data client configuration
	var mdLogger = &simpleLogger{}

	mdConfig := &marketdata.ClientConfig{
		BaseURL:    config.UpstreamBaseURL,
		APIKey:     config.UpstreamAPIKey,
		QPSLimit:   config.QPSLimit,
		BurstLimit: config.BurstLimit,
		Timeout:    config.UpstreamTimeout,
		DebugMode:  config.DebugMode,
		Logger:     mdLogger,
	}

	// Create upstream market-data client
	mdClient, err := marketdata.NewClient(mdConfig)
	if err != nil {
		return fmt.Errorf("failed to create market-data client: %w", err)
	}

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize OpenTelemetry instrumentation provider
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	instrumentationProvider, err := instrumentation.NewProvider(shutdownCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			if config.Transport != transportStdio {
				log.Printf("Error during instrumentation shutdown: %v", shutdownErr)
			}
		}
	}()

	if instrumentationProvider.Enabled() {
		log.Printf("OpenTelemetry instrumentation enabled (metrics: %s, tracing: %s)",
			instrumentationConfig.MetricsExporter, instrumentationConfig.TracingExporter)
	}

	// Resolve the output root before the engine validates it
	if config.Output.RootDir == "" {
		config.Output.RootDir = defaultOutputRoot()
	}
	if !filepath.IsAbs(config.Output.RootDir) {
		abs, err := filepath.Abs(config.Output.RootDir)
		if err != nil {
			return fmt.Errorf("unable to resolve output root %q: %w", config.Output.RootDir, err)
		}
		config.Output.RootDir = abs
	}

	logLevel := slog.LevelInfo
	if config.DebugMode {
		logLevel = slog.LevelDebug
	}
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Token estimation: exact WordPiece counts when a vocabulary is
	// configured, byte heuristic otherwise.
	estimator := output.NewEstimator(nil)
	if config.TokenizerVocab != "" {
		counter, err := output.NewWordPieceCounter(config.TokenizerVocab)
		if err != nil {
			return fmt.Errorf("failed to load tokenizer vocabulary: %w", err)
		}
		estimator = output.NewEstimator(counter)
	}

	// Create the output decision engine and the project store on top of the
	// same validated configuration.
	engine, err := output.NewEngine(&config.Output, estimator, nil, slogger)
	if err != nil {
		return fmt.Errorf("failed to create output engine: %w", err)
	}
	store, err := output.NewProjectStore(engine.Config(), slogger)
	if err != nil {
		return fmt.Errorf("failed to create project store: %w", err)
	}

	if config.ReadOnly {
		log.Printf("Read-only mode enabled: tools that create or delete files will be refused")
	}

	// Wrap the upstream client with the query cache so repeated and
	// concurrent identical queries share one upstream request.
	cachedClient := marketdata.NewCachedClient(mdClient,
		marketdata.WithCacheLogger(slogger),
		marketdata.WithCacheMetrics(instrumentationProvider.Metrics()),
	)
	defer func() {
		if err := cachedClient.Close(); err != nil && config.Transport != transportStdio {
			log.Printf("Error closing query cache: %v", err)
		}
	}()

	serverCfg := server.NewDefaultConfig()
	serverCfg.Version = rootCmd.Version
	serverCfg.DefaultProject = config.DefaultProject
	serverCfg.OutputRootDir = config.Output.RootDir
	serverCfg.ReadOnly = config.ReadOnly
	serverCfg.RestrictedProjects = config.RestrictedProjects
	if config.DebugMode {
		serverCfg.LogLevel = "debug"
	}

	// Create server context with the upstream client, engine and store
	var serverContextOptions []server.Option
	serverContextOptions = append(serverContextOptions, server.WithMarketDataClient(cachedClient))
	serverContextOptions = append(serverContextOptions, server.WithEngine(engine))
	serverContextOptions = append(serverContextOptions, server.WithProjectStore(store))
	serverContextOptions = append(serverContextOptions, server.WithConfig(serverCfg))
	serverContextOptions = append(serverContextOptions, server.WithInstrumentationProvider(instrumentationProvider))

	serverContext, err := server.NewServerContext(shutdownCtx, serverContextOptions...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			// Only log shutdown errors for non-stdio transports to avoid output interference
			if config.Transport != transportStdio {
				log.Printf("Error during server context shutdown: %v", err)
			}
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("mcp-marketdata", rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := registerTools(mcpSrv, serverContext); err != nil {
		return err
	}

	// Start the appropriate server based on transport type
	switch config.Transport {
	case transportStdio:
		// Don't print startup message for stdio mode as it interferes with MCP communication
		return runStdioServer(mcpSrv)
	case transportSSE:
		fmt.Printf("Starting MCP market-data server with %s transport...\n", config.Transport)
		return runSSEServer(mcpSrv, config.HTTPAddr, config.SSEEndpoint, config.MessageEndpoint, shutdownCtx, config.DebugMode, instrumentationProvider, config.Metrics)
	case transportStreamableHTTP:
		fmt.Printf("Starting MCP market-data server with %s transport...\n", config.Transport)
		return runStreamableHTTPServer(mcpSrv, config.HTTPAddr, config.HTTPEndpoint, shutdownCtx, config.DebugMode, instrumentationProvider, serverContext, config.Metrics)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", config.Transport)
	}
}

// registerTools wires every tool category into the MCP server. The table is
// the single place a new category gets added.
func registerTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	categories := []struct {
		name     string
		register func(*mcpserver.MCPServer, *server.ServerContext) error
	}{
		{"query", query.RegisterQueryTools},
		{"files", files.RegisterFileTools},
	}

	for _, category := range categories {
		if err := category.register(mcpSrv, sc); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", category.name, err)
		}
	}
	return nil
}

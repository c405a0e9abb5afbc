// Package config loads gateway configuration from an optional YAML file and
// MARKETDATA_* environment variables. Serve-command flags are layered on top
// by the cmd package, so the precedence is flags > environment > file >
// defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// with dots in config keys replaced by underscores: output.root_dir becomes
// MARKETDATA_OUTPUT_ROOT_DIR.
const EnvPrefix = "MARKETDATA"

// Transport and upstream defaults. Output defaults come from
// output.DefaultConfig so the two packages cannot drift apart.
const (
	DefaultTransport       = "stdio"
	DefaultHTTPAddr        = ":8080"
	DefaultSSEEndpoint     = "/sse"
	DefaultMessageEndpoint = "/message"
	DefaultHTTPEndpoint    = "/mcp"
	DefaultMetricsAddr     = ":9090"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultQPSLimit        = 20.0
	DefaultBurstLimit      = 30
)

// Config is the full gateway configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Output    output.Config   `mapstructure:"output"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
}

// ServerConfig holds transport and endpoint settings for the MCP server.
type ServerConfig struct {
	// Transport selects stdio, sse, or streamable-http.
	Transport string `mapstructure:"transport"`

	// HTTPAddr is the listen address for HTTP-based transports.
	HTTPAddr string `mapstructure:"http_addr"`

	// SSEEndpoint and MessageEndpoint are the paths for the sse transport.
	SSEEndpoint     string `mapstructure:"sse_endpoint"`
	MessageEndpoint string `mapstructure:"message_endpoint"`

	// HTTPEndpoint is the path for the streamable-http transport.
	HTTPEndpoint string `mapstructure:"http_endpoint"`

	// MetricsAddr is the listen address of the separate metrics server.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// MetricsEnabled starts the separate Prometheus metrics server.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// ReadOnly blocks tools that create or delete files.
	ReadOnly bool `mapstructure:"read_only"`

	// DefaultProject is the project folder used when a call names none.
	DefaultProject string `mapstructure:"default_project"`

	// RestrictedProjects lists project names every tool must refuse.
	RestrictedProjects []string `mapstructure:"restricted_projects"`

	// Debug enables verbose transport logging.
	Debug bool `mapstructure:"debug"`
}

// UpstreamConfig holds settings for the upstream market-data API client.
type UpstreamConfig struct {
	// BaseURL is the upstream API base URL. HTTPS is enforced at startup.
	BaseURL string `mapstructure:"base_url"`

	// APIKey authenticates requests to the upstream API.
	APIKey string `mapstructure:"api_key"`

	// Timeout bounds each upstream HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`

	// QPSLimit and BurstLimit bound the upstream request rate.
	QPSLimit   float64 `mapstructure:"qps_limit"`
	BurstLimit int     `mapstructure:"burst_limit"`
}

// TokenizerConfig selects the token counting strategy for size estimation.
type TokenizerConfig struct {
	// Vocab is the path to a WordPiece vocabulary file. When set, size
	// estimation uses the exact tokenizer instead of the byte heuristic.
	Vocab string `mapstructure:"vocab"`
}

// Load reads configuration from the given file, or from config.yaml in the
// working directory and /etc/mcp-marketdata when the path is empty. A missing
// default-location file is fine; an explicitly named file must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mcp-marketdata")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file in the default locations: defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers a default for every key so environment-only
// operation works without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", DefaultTransport)
	v.SetDefault("server.http_addr", DefaultHTTPAddr)
	v.SetDefault("server.sse_endpoint", DefaultSSEEndpoint)
	v.SetDefault("server.message_endpoint", DefaultMessageEndpoint)
	v.SetDefault("server.http_endpoint", DefaultHTTPEndpoint)
	v.SetDefault("server.metrics_addr", DefaultMetricsAddr)
	v.SetDefault("server.metrics_enabled", false)
	v.SetDefault("server.read_only", false)
	v.SetDefault("server.default_project", "")
	v.SetDefault("server.restricted_projects", []string{})
	v.SetDefault("server.debug", false)

	out := output.DefaultConfig()
	v.SetDefault("output.root_dir", "")
	v.SetDefault("output.project_name", "")
	v.SetDefault("output.enable_project_folders", out.EnableProjectFolders)
	v.SetDefault("output.auto_decision", out.AutoDecision)
	v.SetDefault("output.token_threshold", out.TokenThreshold)
	v.SetDefault("output.row_threshold", out.RowThreshold)
	v.SetDefault("output.max_inline_rows", out.MaxInlineRows)
	v.SetDefault("output.default_format", out.DefaultFormat)
	v.SetDefault("output.compression", out.Compression)
	v.SetDefault("output.collect_metadata", out.CollectMetadata)
	v.SetDefault("output.chunk_size", out.ChunkSize)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", DefaultUpstreamTimeout)
	v.SetDefault("upstream.qps_limit", DefaultQPSLimit)
	v.SetDefault("upstream.burst_limit", DefaultBurstLimit)

	v.SetDefault("tokenizer.vocab", "")
}

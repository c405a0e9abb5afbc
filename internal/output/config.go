package output

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Output formats supported by the file writer.
const (
	// FormatCSV writes tabular datasets as comma-separated values.
	FormatCSV = "csv"

	// FormatJSON writes any dataset as pretty-printed JSON.
	FormatJSON = "json"
)

// Default limits for output decisions and file writing.
// These are tuned for typical LLM context windows and market-data response sizes.
const (
	// DefaultTokenThreshold is the default token cost above which results
	// are written to a file instead of returned inline.
	DefaultTokenThreshold = 20000

	// DefaultRowThreshold is the default row count used for advisory
	// row-based reporting. It never gates the decision on its own.
	DefaultRowThreshold = 1000

	// DefaultMaxInlineRows is the default cap on rows rendered inline.
	DefaultMaxInlineRows = 500

	// DefaultChunkSize is the default streaming chunk size: rows per flush
	// for CSV output, copy-buffer bytes for JSON output.
	DefaultChunkSize = 1000

	// MinChunkSize is the smallest accepted chunk size.
	MinChunkSize = 100

	// MaxChunkSize is the largest accepted chunk size.
	// This bounds per-write buffering even under pathological configuration.
	MaxChunkSize = 100000

	// MaxRowThreshold is the largest accepted row threshold.
	MaxRowThreshold = 1000000

	// DefaultDirPerm is the permission applied to created directories.
	DefaultDirPerm fs.FileMode = 0o755
)

// Config holds configuration for output decisions and secure file writing.
// The zero value is not usable; start from DefaultConfig and override.
type Config struct {
	// RootDir is the directory all output files live under.
	// It must be absolute and must exist or be creatable.
	RootDir string `json:"rootDir" yaml:"rootDir" mapstructure:"root_dir"`

	// ProjectName isolates output files in a per-project subdirectory
	// when EnableProjectFolders is set.
	ProjectName string `json:"projectName" yaml:"projectName" mapstructure:"project_name"`

	// EnableProjectFolders nests output under RootDir/ProjectName.
	EnableProjectFolders bool `json:"enableProjectFolders" yaml:"enableProjectFolders" mapstructure:"enable_project_folders"`

	// AutoDecision lets the decision engine choose between inline and file
	// output. When false, results are always returned inline unless the
	// caller forces file output.
	AutoDecision bool `json:"autoDecision" yaml:"autoDecision" mapstructure:"auto_decision"`

	// TokenThreshold is the estimated token cost above which file output
	// is chosen. Must be positive.
	TokenThreshold int `json:"tokenThreshold" yaml:"tokenThreshold" mapstructure:"token_threshold"`

	// RowThreshold is an advisory row count bound (1..1,000,000).
	RowThreshold int `json:"rowThreshold" yaml:"rowThreshold" mapstructure:"row_threshold"`

	// MaxInlineRows caps the rows rendered in an inline response. Must be positive.
	MaxInlineRows int `json:"maxInlineRows" yaml:"maxInlineRows" mapstructure:"max_inline_rows"`

	// DefaultFormat is the output format when the caller does not pick one.
	// One of "csv" or "json".
	DefaultFormat string `json:"defaultFormat" yaml:"defaultFormat" mapstructure:"default_format"`

	// Compression gzips written files and appends a ".gz" suffix.
	Compression bool `json:"compression" yaml:"compression" mapstructure:"compression"`

	// CollectMetadata enables checksum computation on written files.
	// Disabling it trades integrity auditability for write cost.
	CollectMetadata bool `json:"collectMetadata" yaml:"collectMetadata" mapstructure:"collect_metadata"`

	// ChunkSize is the streaming chunk size (100..100,000): rows per flush
	// for CSV, copy-buffer bytes for JSON.
	ChunkSize int `json:"chunkSize" yaml:"chunkSize" mapstructure:"chunk_size"`

	// DirPerm is the permission applied to directories this subsystem creates.
	DirPerm fs.FileMode `json:"dirPerm" yaml:"dirPerm" mapstructure:"dir_perm"`
}

// DefaultConfig returns a Config with sensible defaults for market-data responses.
// RootDir is left empty and must be set before use.
func DefaultConfig() *Config {
	return &Config{
		EnableProjectFolders: true,
		AutoDecision:         true,
		TokenThreshold:       DefaultTokenThreshold,
		RowThreshold:         DefaultRowThreshold,
		MaxInlineRows:        DefaultMaxInlineRows,
		DefaultFormat:        FormatCSV,
		CollectMetadata:      true,
		ChunkSize:            DefaultChunkSize,
		DirPerm:              DefaultDirPerm,
	}
}

// Validate checks the configuration and returns a copy with out-of-range
// values capped. Unrecoverable problems (bad root directory, non-positive
// threshold, unknown format) return a ConfigurationError with a remediation
// hint; those are meant to be fatal at startup.
//
// The root directory is created when missing and probed for writability,
// so a successful Validate means writes can actually begin.
func (c *Config) Validate() (*Config, error) {
	validated := *c

	if err := validated.checkRoot(); err != nil {
		return nil, err
	}

	if validated.TokenThreshold <= 0 {
		return nil, &ConfigurationError{
			Field: "token_threshold",
			Value: fmt.Sprintf("%d", validated.TokenThreshold),
			Hint:  "set a positive token threshold, e.g. 20000",
		}
	}

	switch strings.ToLower(validated.DefaultFormat) {
	case FormatCSV, FormatJSON:
		validated.DefaultFormat = strings.ToLower(validated.DefaultFormat)
	case "":
		validated.DefaultFormat = FormatCSV
	default:
		return nil, &ConfigurationError{
			Field: "default_format",
			Value: validated.DefaultFormat,
			Hint:  `use "csv" or "json"`,
		}
	}

	// Apply minimum bounds
	if validated.RowThreshold < 1 {
		validated.RowThreshold = DefaultRowThreshold
	}
	if validated.MaxInlineRows <= 0 {
		validated.MaxInlineRows = DefaultMaxInlineRows
	}
	if validated.ChunkSize < MinChunkSize {
		validated.ChunkSize = DefaultChunkSize
	}
	if validated.DirPerm == 0 {
		validated.DirPerm = DefaultDirPerm
	}

	// Apply absolute maximum bounds to keep memory use predictable
	if validated.RowThreshold > MaxRowThreshold {
		validated.RowThreshold = MaxRowThreshold
	}
	if validated.ChunkSize > MaxChunkSize {
		validated.ChunkSize = MaxChunkSize
	}

	return &validated, nil
}

// checkRoot verifies the root directory is absolute, exists (creating it
// when missing), and is writable by the current process.
func (c *Config) checkRoot() error {
	if c.RootDir == "" {
		return &ConfigurationError{
			Field: "root_dir",
			Value: "",
			Hint:  "set the output root directory to an absolute path",
		}
	}
	if !filepath.IsAbs(c.RootDir) {
		return &ConfigurationError{
			Field: "root_dir",
			Value: c.RootDir,
			Hint:  "the output root must be an absolute path",
		}
	}

	perm := c.DirPerm
	if perm == 0 {
		perm = DefaultDirPerm
	}
	if err := os.MkdirAll(c.RootDir, perm); err != nil {
		return &ConfigurationError{
			Field: "root_dir",
			Value: c.RootDir,
			Hint:  "ensure the path is creatable by the server process",
			Err:   err,
		}
	}

	probe, err := os.CreateTemp(c.RootDir, ".write-probe-*")
	if err != nil {
		return &ConfigurationError{
			Field: "root_dir",
			Value: c.RootDir,
			Hint:  "ensure the directory is writable by the server process",
			Err:   err,
		}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

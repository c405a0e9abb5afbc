package output

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/marketbridge/mcp-marketdata/internal/logging"
)

// defaultFilenamePrefix names output files when the caller does not pick a
// prefix.
const defaultFilenamePrefix = "data"

// filenameTimestampLayout is the UTC timestamp embedded in suggested
// filenames: YYYYMMDD_HHMMSS.
const filenameTimestampLayout = "20060102_150405"

// Decision is the inline-versus-file verdict for one dataset.
// It is produced fresh per call and never persisted.
type Decision struct {
	// UseFile is true when the dataset should be written to a file.
	UseFile bool `json:"useFile"`

	// TokenCount is the estimated token cost that drove the verdict.
	TokenCount int `json:"tokenCount"`

	// RowCount is the dataset's informational row or element count.
	// It never gates the decision.
	RowCount int `json:"rowCount"`

	// Reason explains the verdict in one sentence.
	Reason string `json:"reason"`

	// SuggestedFilename is always generated, whatever the verdict:
	// {prefix}_{YYYYMMDD_HHMMSS}.{csv|json} plus ".gz" under compression.
	SuggestedFilename string `json:"suggestedFilename"`

	// Format is the output format the filename was generated for.
	Format string `json:"format"`
}

// DecideOptions carries per-call overrides for a decision.
type DecideOptions struct {
	// ForceInline overrides the threshold comparison toward inline output.
	// Mutually exclusive with ForceFile.
	ForceInline bool

	// ForceFile overrides the threshold comparison toward file output.
	// Mutually exclusive with ForceInline.
	ForceFile bool

	// FilenamePrefix replaces the default filename prefix. It is sanitized
	// before use.
	FilenamePrefix string

	// Format overrides the configured default format ("csv" or "json").
	Format string
}

// Engine combines the size estimator, configuration thresholds, and caller
// overrides into output decisions, and builds the response envelopes by
// delegating writes to the file writer. Decisions themselves are pure
// computation and never touch the filesystem.
type Engine struct {
	config    *Config
	estimator *Estimator
	writer    *Writer
	logger    *slog.Logger
}

// NewEngine creates a decision engine. The configuration is validated; a
// nil estimator gets the default heuristic counter.
func NewEngine(config *Config, estimator *Estimator, writer *Writer, logger *slog.Logger) (*Engine, error) {
	if config == nil {
		return nil, &ConfigurationError{Field: "config", Value: "nil", Hint: "provide an output configuration"}
	}
	validated, err := config.Validate()
	if err != nil {
		return nil, err
	}
	if estimator == nil {
		estimator = NewEstimator(nil)
	}
	if writer == nil {
		writer, err = NewWriter(validated, logger)
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:    validated,
		estimator: estimator,
		writer:    writer,
		logger:    logger,
	}, nil
}

// Config returns the engine's validated configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Decide produces the inline-versus-file verdict for a dataset. A nil cfg
// uses the engine's configuration. Both force flags together, or an empty
// dataset, fail with an InvalidArgumentError before any estimation runs.
//
// The threshold comparison is strict: a cost exactly equal to the
// threshold stays inline.
func (e *Engine) Decide(ds *Dataset, cfg *Config, opts DecideOptions) (*Decision, error) {
	if opts.ForceInline && opts.ForceFile {
		return nil, &InvalidArgumentError{Reason: "force_inline and force_file are mutually exclusive"}
	}
	if ds == nil || ds.Empty() {
		return nil, &InvalidArgumentError{Reason: "dataset is empty"}
	}
	if cfg == nil {
		cfg = e.config
	}

	tokens, err := e.estimator.Estimate(ds)
	if err != nil {
		return nil, err
	}

	format := chooseFormat(ds, cfg, opts.Format)
	decision := &Decision{
		TokenCount:        tokens,
		RowCount:          ds.RowCount(),
		Format:            format,
		SuggestedFilename: suggestFilename(opts.FilenamePrefix, format, cfg.Compression),
	}

	switch {
	case opts.ForceInline:
		decision.UseFile = false
		decision.Reason = "forced inline by override"
	case opts.ForceFile:
		decision.UseFile = true
		decision.Reason = "forced file by override"
	case !cfg.AutoDecision:
		decision.UseFile = false
		decision.Reason = "automatic decision disabled"
	case tokens > cfg.TokenThreshold:
		decision.UseFile = true
		decision.Reason = fmt.Sprintf("token count %d exceeds threshold %d", tokens, cfg.TokenThreshold)
	default:
		decision.UseFile = false
		decision.Reason = fmt.Sprintf("token count %d below threshold %d", tokens, cfg.TokenThreshold)
	}

	return decision, nil
}

// Process runs the full pipeline: decide, then either render the inline
// envelope or write the file and wrap its metadata in a file reference.
func (e *Engine) Process(ctx context.Context, ds *Dataset, cfg *Config, opts DecideOptions) (*Result, error) {
	if cfg == nil {
		cfg = e.config
	}

	decision, err := e.Decide(ds, cfg, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Decision: decision}
	if !decision.UseFile {
		inline, err := buildInline(ds, decision, cfg)
		if err != nil {
			return nil, err
		}
		result.Inline = inline
		return result, nil
	}

	relPath := decision.SuggestedFilename
	if cfg.EnableProjectFolders && cfg.ProjectName != "" {
		relPath = filepath.Join(SanitizeFilename(cfg.ProjectName), relPath)
	}

	meta, err := e.writer.Write(ctx, ds, relPath, cfg)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("dataset written to file",
		logging.Path(meta.RelativePath),
		logging.Format(meta.Format),
		slog.Int("rows", meta.Rows),
		slog.Int64("bytes", meta.SizeBytes))

	result.File = buildFileReference(meta, cfg)
	return result, nil
}

// chooseFormat picks the output format: the per-call override when valid,
// else the configured default, with non-tabular data always JSON.
func chooseFormat(ds *Dataset, cfg *Config, override string) string {
	if !ds.Tabular() {
		return FormatJSON
	}
	switch strings.ToLower(override) {
	case FormatCSV:
		return FormatCSV
	case FormatJSON:
		return FormatJSON
	}
	if cfg.DefaultFormat != "" {
		return cfg.DefaultFormat
	}
	return FormatCSV
}

// suggestFilename builds {prefix}_{YYYYMMDD_HHMMSS}.{format}[.gz] from a
// sanitized prefix and the current UTC time.
func suggestFilename(prefix, format string, compressed bool) string {
	if prefix == "" {
		prefix = defaultFilenamePrefix
	}
	prefix = SanitizeFilename(prefix)

	name := fmt.Sprintf("%s_%s.%s", prefix, time.Now().UTC().Format(filenameTimestampLayout), format)
	if compressed {
		name += gzipSuffix
	}
	return name
}

package output

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marketbridge/mcp-marketdata/internal/logging"
	"github.com/marketbridge/mcp-marketdata/internal/retry"
)

// checksumBufferSize is the read buffer used for streaming checksums.
const checksumBufferSize = 8 * 1024

// gzipSuffix is appended to compressed output paths.
const gzipSuffix = ".gz"

// FileMetadata describes a successfully written output file.
type FileMetadata struct {
	// RelativePath is the file's path relative to the output root.
	RelativePath string `json:"relativePath"`

	// Timestamp is when the write completed, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// SizeBytes is the on-disk size.
	SizeBytes int64 `json:"sizeBytes"`

	// SizeHuman is the size in binary units (B/KB/MB/GB/TB, one decimal).
	SizeHuman string `json:"sizeHuman"`

	// Format is the logical format including compression, e.g. "csv.gz".
	Format string `json:"format"`

	// Compressed reports whether the file is gzip-compressed.
	Compressed bool `json:"compressed"`

	// Rows is the dataset's row or element count.
	Rows int `json:"rows"`

	// Checksum is the hex SHA-256 of the file contents. Empty when
	// metadata collection is disabled.
	Checksum string `json:"checksum,omitempty"`
}

// Writer streams datasets to CSV or JSON files under the output root.
// Memory use is bounded by the configured chunk size regardless of dataset
// size. Writers are stateless and safe for concurrent use; two concurrent
// writes to the same resolved path race at the filesystem level, which is
// an accepted limitation callers avoid with unique filenames.
type Writer struct {
	config *Config
	logger *slog.Logger
	retry  retry.Config
}

// NewWriter creates a file writer with a validated copy of the configuration.
func NewWriter(config *Config, logger *slog.Logger) (*Writer, error) {
	if config == nil {
		return nil, &ConfigurationError{Field: "config", Value: "nil", Hint: "provide an output configuration"}
	}
	validated, err := config.Validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		config: validated,
		logger: logger,
		retry:  retry.DefaultConfig(),
	}, nil
}

// Config returns the writer's validated configuration.
func (w *Writer) Config() *Config {
	return w.config
}

// Write streams the dataset to relPath under the configured root and
// returns metadata for the written file. A per-call configuration may be
// passed to override format, compression, or chunking; nil uses the
// writer's configuration.
//
// The target path is resolved through path security with the permission
// check applied once the parent directory exists. Transient I/O failures
// are retried with exponential backoff; when all attempts fail the partial
// file is removed best-effort and a FileWriteError names the path and cause.
func (w *Writer) Write(ctx context.Context, ds *Dataset, relPath string, cfg *Config) (*FileMetadata, error) {
	if cfg == nil {
		cfg = w.config
	}
	if ds == nil || ds.Empty() {
		return nil, &InvalidArgumentError{Reason: "dataset is empty"}
	}

	path := relPath
	if cfg.Compression && !strings.HasSuffix(path, gzipSuffix) {
		path += gzipSuffix
	}

	format, err := targetFormat(path, ds, cfg)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveSafe(path, cfg.RootDir, false)
	if err != nil {
		return nil, err
	}

	parent := filepath.Dir(resolved)
	if err := os.MkdirAll(parent, cfg.DirPerm); err != nil {
		if accessErr := checkDirAccess(nearestExisting(parent)); accessErr != nil {
			return nil, accessErr
		}
		return nil, &FileWriteError{Path: resolved, Attempts: 0, Err: err}
	}
	if err := checkDirAccess(parent); err != nil {
		return nil, err
	}

	var attempts int
	writeErr := retry.Do(ctx, w.retry, func(attempt int) error {
		attempts = attempt
		return w.writeOnce(ds, resolved, format, cfg)
	})
	if writeErr != nil {
		w.cleanupPartial(resolved)
		var te retry.TransientError
		if errors.As(writeErr, &te) {
			return nil, &FileWriteError{Path: resolved, Attempts: attempts, Err: te.Err}
		}
		return nil, writeErr
	}

	return w.collectMetadata(ds, resolved, format, cfg)
}

// writeOnce performs a single write attempt. I/O failures come back marked
// transient so the retry loop picks them up; serialization problems do not.
func (w *Writer) writeOnce(ds *Dataset, path, format string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return retry.Transient(err)
	}

	buffered := bufio.NewWriter(f)
	var out io.Writer = buffered
	var gz *gzip.Writer
	if cfg.Compression {
		gz = gzip.NewWriter(buffered)
		out = gz
	}

	switch format {
	case FormatCSV:
		err = writeCSV(out, ds.Records(), cfg.ChunkSize)
	default:
		err = writeJSON(out, ds, cfg.ChunkSize)
	}
	if err != nil {
		_ = f.Close()
		return err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			_ = f.Close()
			return retry.Transient(err)
		}
	}
	if err := buffered.Flush(); err != nil {
		_ = f.Close()
		return retry.Transient(err)
	}
	if err := f.Close(); err != nil {
		return retry.Transient(err)
	}
	return nil
}

// cleanupPartial removes a partially written file. Failures are logged,
// not returned: the write error stays the caller-visible error.
func (w *Writer) cleanupPartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("failed to remove partial output file",
			logging.Path(path),
			logging.Err(err))
	}
}

// collectMetadata stats the written file and computes the checksum when
// metadata collection is enabled.
func (w *Writer) collectMetadata(ds *Dataset, resolved, format string, cfg *Config) (*FileMetadata, error) {
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, &FileWriteError{Path: resolved, Attempts: 1, Err: err}
	}

	meta := &FileMetadata{
		RelativePath: relativeToRoot(resolved, cfg.RootDir),
		Timestamp:    time.Now().UTC(),
		SizeBytes:    info.Size(),
		SizeHuman:    humanSize(info.Size()),
		Format:       format,
		Compressed:   cfg.Compression,
		Rows:         ds.RowCount(),
	}
	if cfg.Compression {
		meta.Format = format + gzipSuffix
	}

	if cfg.CollectMetadata {
		sum, err := ChecksumFile(resolved)
		if err != nil {
			return nil, &FileWriteError{Path: resolved, Attempts: 1, Err: fmt.Errorf("checksum failed: %w", err)}
		}
		meta.Checksum = sum
	}
	return meta, nil
}

// targetFormat derives the logical format from the path extension, falling
// back to the configured default. CSV requires tabular data.
func targetFormat(path string, ds *Dataset, cfg *Config) (string, error) {
	name := strings.TrimSuffix(path, gzipSuffix)
	format := cfg.DefaultFormat
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		format = FormatCSV
	case ".json":
		format = FormatJSON
	}
	if format == FormatCSV && !ds.Tabular() {
		return "", &InvalidArgumentError{Reason: "csv output requires a tabular dataset"}
	}
	if format == "" {
		format = FormatJSON
	}
	return format, nil
}

// writeCSV streams records as CSV: header from the first record's sorted
// field names, then rows, flushing every chunkSize rows so buffering stays
// bounded.
func writeCSV(out io.Writer, records []Record, chunkSize int) error {
	if len(records) == 0 {
		return &InvalidArgumentError{Reason: "no records to write"}
	}
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	cw := csv.NewWriter(out)
	header := csvHeader(records[0])
	if err := cw.Write(header); err != nil {
		return retry.Transient(err)
	}

	row := make([]string, len(header))
	for i, rec := range records {
		for j, field := range header {
			row[j] = csvCell(rec[field])
		}
		if err := cw.Write(row); err != nil {
			return retry.Transient(err)
		}
		if (i+1)%chunkSize == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return retry.Transient(err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return retry.Transient(err)
	}
	return nil
}

// writeJSON serializes the dataset wholesale (JSON cannot be appended
// chunkwise) and copies it out through a chunk-sized buffer.
func writeJSON(out io.Writer, ds *Dataset, chunkSize int) error {
	var v any
	if ds.Tabular() {
		v = ds.Records()
	} else {
		v = ds.Value()
	}

	data, err := json.MarshalIndent(canonicalize(v), "", "  ")
	if err != nil {
		return &EstimationError{Reason: fmt.Sprintf("value of type %T is not serializable", v), Err: err}
	}

	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(out, bytes.NewReader(data), buf); err != nil {
		return retry.Transient(err)
	}
	return nil
}

// csvHeader returns the first record's field names in sorted order so the
// column layout is deterministic.
func csvHeader(rec Record) []string {
	header := make([]string, 0, len(rec))
	for field := range rec {
		header = append(header, field)
	}
	sort.Strings(header)
	return header
}

// csvCell renders a value as a CSV cell. Known convertible types take
// their canonical string form; nested structures are JSON-encoded.
func csvCell(v any) string {
	switch t := canonicalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

// ChecksumFile computes the hex SHA-256 of a file using a fixed-size read
// buffer, so memory stays constant for any file size.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, checksumBufferSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// humanSize formats a byte count in binary units with one decimal place.
func humanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f TB", size)
}

// relativeToRoot rewrites an absolute path relative to the output root,
// tolerating a symlinked root. Falls back to the base name.
func relativeToRoot(path, root string) string {
	candidates := []string{root}
	if canon, err := filepath.EvalSymlinks(root); err == nil && canon != root {
		candidates = append(candidates, canon)
	}
	for _, r := range candidates {
		if rel, err := filepath.Rel(r, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(path)
}

package output

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"
)

// Response envelope type discriminators.
const (
	// ResponseTypeInline marks data returned directly in the response.
	ResponseTypeInline = "inline_data"

	// ResponseTypeFile marks a reference to a written file.
	ResponseTypeFile = "file_reference"
)

// InlineResponse returns the dataset directly to the caller. For CSV the
// data is a header-plus-rows string; for JSON it is the raw value.
type InlineResponse struct {
	Type      string    `json:"type"`
	Format    string    `json:"format"`
	Data      any       `json:"data"`
	RowCount  int       `json:"row_count"`
	Timestamp time.Time `json:"timestamp"`
}

// FileResponse points the caller at a written file along with its
// integrity and size metadata. Filepath is relative to the output root.
type FileResponse struct {
	Type          string        `json:"type"`
	Filepath      string        `json:"filepath"`
	Filename      string        `json:"filename"`
	Size          int64         `json:"size"`
	SizeFormatted string        `json:"size_formatted"`
	Format        string        `json:"format"`
	Compressed    bool          `json:"compressed"`
	Rows          int           `json:"rows"`
	Timestamp     time.Time     `json:"timestamp"`
	Checksum      string        `json:"checksum,omitempty"`
	Metadata      *FileMetadata `json:"metadata,omitempty"`
}

// Result is the outcome of processing one dataset: the decision plus
// exactly one populated envelope.
type Result struct {
	// Decision is the verdict that selected the envelope.
	Decision *Decision `json:"decision"`

	// Inline is set when the verdict was inline output.
	Inline *InlineResponse `json:"inline,omitempty"`

	// File is set when the verdict was file output.
	File *FileResponse `json:"file,omitempty"`
}

// Envelope returns whichever response envelope is populated.
func (r *Result) Envelope() any {
	if r == nil {
		return nil
	}
	if r.File != nil {
		return r.File
	}
	return r.Inline
}

// EnvelopeJSON marshals the populated envelope for transport to the tool
// dispatch layer.
func (r *Result) EnvelopeJSON() (string, error) {
	data, err := json.MarshalIndent(r.Envelope(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// buildInline renders the inline envelope. Tabular CSV data becomes a
// header-plus-rows string capped at the configured inline row limit; JSON
// data is passed through after canonical coercion.
func buildInline(ds *Dataset, decision *Decision, cfg *Config) (*InlineResponse, error) {
	resp := &InlineResponse{
		Type:      ResponseTypeInline,
		Format:    decision.Format,
		RowCount:  decision.RowCount,
		Timestamp: time.Now().UTC(),
	}

	if decision.Format == FormatCSV && ds.Tabular() {
		records := ds.Records()
		if cfg.MaxInlineRows > 0 && len(records) > cfg.MaxInlineRows {
			records = records[:cfg.MaxInlineRows]
		}
		text, err := renderCSVString(records)
		if err != nil {
			return nil, err
		}
		resp.Data = text
		return resp, nil
	}

	if ds.Tabular() {
		resp.Data = canonicalize(ds.Records())
	} else {
		resp.Data = canonicalize(ds.Value())
	}
	return resp, nil
}

// buildFileReference wraps write metadata in the file-reference envelope.
// The metadata block rides along only when collection is enabled.
func buildFileReference(meta *FileMetadata, cfg *Config) *FileResponse {
	resp := &FileResponse{
		Type:          ResponseTypeFile,
		Filepath:      meta.RelativePath,
		Filename:      baseName(meta.RelativePath),
		Size:          meta.SizeBytes,
		SizeFormatted: meta.SizeHuman,
		Format:        meta.Format,
		Compressed:    meta.Compressed,
		Rows:          meta.Rows,
		Timestamp:     meta.Timestamp,
		Checksum:      meta.Checksum,
	}
	if cfg.CollectMetadata {
		resp.Metadata = meta
	}
	return resp
}

// renderCSVString renders records as a CSV document in memory, reusing the
// writer's header and cell rules.
func renderCSVString(records []Record) (string, error) {
	if len(records) == 0 {
		return "", &InvalidArgumentError{Reason: "no records to render"}
	}

	var sb strings.Builder
	cw := csv.NewWriter(&sb)

	header := csvHeader(records[0])
	if err := cw.Write(header); err != nil {
		return "", err
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for j, field := range header {
			row[j] = csvCell(rec[field])
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// baseName returns the final path component of a slash- or
// separator-joined relative path.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

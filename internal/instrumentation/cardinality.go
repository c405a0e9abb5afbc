package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with row counts or filenames.

// RowsBucket represents a classification of dataset row counts for metrics.
type RowsBucket string

// Row count classifications for metrics cardinality control.
const (
	// RowsBucketEmpty represents datasets with no rows (single-value payloads).
	RowsBucketEmpty RowsBucket = "empty"

	// RowsBucketSmall represents datasets of at most 100 rows.
	RowsBucketSmall RowsBucket = "1-100"

	// RowsBucketMedium represents datasets of 101 to 1000 rows.
	RowsBucketMedium RowsBucket = "101-1000"

	// RowsBucketLarge represents datasets of 1001 to 10000 rows.
	RowsBucketLarge RowsBucket = "1001-10000"

	// RowsBucketHuge represents datasets above 10000 rows.
	RowsBucketHuge RowsBucket = "10000+"
)

// ClassifyRowCount classifies a dataset row count into a bucket for metrics.
// This prevents cardinality explosion by grouping arbitrary row counts into
// a fixed set of categories instead of using the exact count.
//
// # Classification Rules
//
//	| Row count       | Classification |
//	|-----------------|----------------|
//	| <= 0            | empty          |
//	| 1 to 100        | 1-100          |
//	| 101 to 1000     | 101-1000       |
//	| 1001 to 10000   | 1001-10000     |
//	| above 10000     | 10000+         |
//
// # Examples
//
//	ClassifyRowCount(0)      // "empty"
//	ClassifyRowCount(42)     // "1-100"
//	ClassifyRowCount(500)    // "101-1000"
//	ClassifyRowCount(9999)   // "1001-10000"
//	ClassifyRowCount(250000) // "10000+"
func ClassifyRowCount(rows int) string {
	switch {
	case rows <= 0:
		return string(RowsBucketEmpty)
	case rows <= 100:
		return string(RowsBucketSmall)
	case rows <= 1000:
		return string(RowsBucketMedium)
	case rows <= 10000:
		return string(RowsBucketLarge)
	default:
		return string(RowsBucketHuge)
	}
}

// FormatFromFilename extracts the output format from a generated filename.
// This reduces cardinality by using the format instead of the full filename,
// which embeds a timestamp and a caller-chosen prefix.
//
// Example:
//
//	FormatFromFilename("quotes_20260825_120000.csv")     // "csv"
//	FormatFromFilename("quotes_20260825_120000.csv.gz")  // "csv.gz"
//	FormatFromFilename("report.json")                    // "json"
//	FormatFromFilename("notes.txt")                      // "unknown"
//	FormatFromFilename("")                               // "unknown"
func FormatFromFilename(name string) string {
	nameLower := strings.ToLower(name)

	switch {
	case strings.HasSuffix(nameLower, ".csv.gz"):
		return "csv.gz"
	case strings.HasSuffix(nameLower, ".json.gz"):
		return "json.gz"
	case strings.HasSuffix(nameLower, ".csv"):
		return "csv"
	case strings.HasSuffix(nameLower, ".json"):
		return "json"
	}

	return "unknown"
}

package output

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Record is a single row of tabular data: field name to value.
// The field set is assumed consistent across records for CSV output.
type Record = map[string]any

// Dataset is the unit of data handed to the output subsystem: either an
// ordered sequence of records or a single JSON-serializable value.
// It is immutable once constructed; ownership transfers to the subsystem
// for the duration of a single decision or write call.
type Dataset struct {
	records []Record
	value   any
	tabular bool
}

// NewTabularDataset wraps an ordered sequence of records.
func NewTabularDataset(records []Record) *Dataset {
	return &Dataset{records: records, tabular: true}
}

// NewValueDataset wraps a single arbitrary JSON-serializable value.
func NewValueDataset(value any) *Dataset {
	return &Dataset{value: value}
}

// Tabular reports whether the dataset is a sequence of records.
func (d *Dataset) Tabular() bool {
	return d != nil && d.tabular
}

// Records returns the record sequence, or nil for value datasets.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return d.records
}

// Value returns the wrapped value, or nil for tabular datasets.
func (d *Dataset) Value() any {
	if d == nil {
		return nil
	}
	return d.value
}

// Empty reports whether there is nothing to output.
func (d *Dataset) Empty() bool {
	if d == nil {
		return true
	}
	if d.tabular {
		return len(d.records) == 0
	}
	return d.value == nil
}

// RowCount returns the informational row or element count: the sequence
// length for tabular data, the key count for a single mapping, and 1 for
// any other value.
func (d *Dataset) RowCount() int {
	if d == nil {
		return 0
	}
	if d.tabular {
		return len(d.records)
	}
	switch v := d.value.(type) {
	case nil:
		return 0
	case map[string]any:
		return len(v)
	case []any:
		return len(v)
	case []Record:
		return len(v)
	default:
		return 1
	}
}

// canonicalize converts values of known convertible types (timestamps,
// durations, big decimals) to their canonical string forms, recursing
// through maps and slices. Values it does not recognize pass through
// unchanged and are left to the JSON encoder to accept or reject.
func canonicalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	case time.Duration:
		return t.String()
	case json.Number:
		return t.String()
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	case *big.Float:
		if t == nil {
			return nil
		}
		return t.Text('f', -1)
	case *big.Rat:
		if t == nil {
			return nil
		}
		return t.RatString()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	case []Record:
		out := make([]any, len(t))
		for i, rec := range t {
			out[i] = canonicalize(map[string]any(rec))
		}
		return out
	default:
		return v
	}
}

// marshalCanonical serializes a value to JSON after canonical coercion.
// A value the encoder rejects even after coercion produces an EstimationError.
func marshalCanonical(v any) ([]byte, error) {
	data, err := json.Marshal(canonicalize(v))
	if err != nil {
		return nil, &EstimationError{
			Reason: fmt.Sprintf("value of type %T is not serializable", v),
			Err:    err,
		}
	}
	return data, nil
}

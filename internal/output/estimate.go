package output

import "math"

// Sampling behavior for the size estimator.
const (
	// sampleRowCount is how many leading rows the sampled estimator serializes.
	sampleRowCount = 10

	// sampleRowThreshold is the row count above which sampling replaces
	// exact counting. Keeps estimation sub-linear on huge datasets.
	sampleRowThreshold = 10000

	// sampleTokenRatio converts sampled bytes to tokens. It deliberately
	// overestimates relative to the exact counters so borderline datasets
	// prefer file output over truncated inline responses.
	sampleTokenRatio = 0.375
)

// Estimator computes a token cost for datasets. Small and medium datasets
// are serialized fully and counted exactly; datasets above
// sampleRowThreshold rows are estimated from a fixed-size row sample.
// Estimation is pure computation and performs no I/O.
type Estimator struct {
	counter TokenCounter
}

// NewEstimator creates an estimator using the given counter.
// A nil counter selects the byte-length heuristic.
func NewEstimator(counter TokenCounter) *Estimator {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Estimator{counter: counter}
}

// Estimate returns the estimated token cost of the dataset.
// An empty dataset costs zero. A dataset holding an unserializable value
// returns an EstimationError and no partial result.
func (e *Estimator) Estimate(ds *Dataset) (int, error) {
	if ds == nil || ds.Empty() {
		return 0, nil
	}

	if ds.Tabular() {
		records := ds.Records()
		if len(records) > sampleRowThreshold {
			return e.estimateSampled(records)
		}
		return e.estimateExact(records)
	}

	data, err := marshalCanonical(ds.Value())
	if err != nil {
		return 0, err
	}
	return e.counter.Count(string(data)), nil
}

// estimateExact serializes all records and runs the exact counter.
func (e *Estimator) estimateExact(records []Record) (int, error) {
	data, err := marshalCanonical(records)
	if err != nil {
		return 0, err
	}
	return e.counter.Count(string(data)), nil
}

// estimateSampled extrapolates from the first sampleRowCount rows:
// average serialized bytes per row, times total rows, times the
// conservative byte-to-token ratio.
func (e *Estimator) estimateSampled(records []Record) (int, error) {
	n := sampleRowCount
	if n > len(records) {
		n = len(records)
	}
	if n == 0 {
		return 0, nil
	}

	data, err := marshalCanonical(records[:n])
	if err != nil {
		return 0, err
	}

	avgBytesPerRow := float64(len(data)) / float64(n)
	cost := avgBytesPerRow * float64(len(records)) * sampleTokenRatio
	return int(math.Ceil(cost)), nil
}

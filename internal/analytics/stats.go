// Package analytics provides the small set of numeric helpers shared by the
// power ratio analysis and the output predictor.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Mean returns the arithmetic mean of values, or NaN when values is empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return floats.Sum(values) / float64(len(values))
}

// MeanStdDev returns the mean and the sample (n-1) standard deviation.
//
// An empty slice yields NaN for both. A single value has no spread and its
// standard deviation is reported as 0 rather than the undefined n-1 result.
func MeanStdDev(values []float64) (mean, stdDev float64) {
	switch len(values) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// Errors summarises how far fitted values are from the observed ones.
type Errors struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// FitErrors computes MAE, RMSE and the coefficient of determination.
// Both slices must have the same length; an empty input returns zero errors.
func FitErrors(actual, fitted []float64) Errors {
	if len(actual) == 0 || len(actual) != len(fitted) {
		return Errors{}
	}

	n := float64(len(actual))
	var absSum float64
	for i := range actual {
		absSum += math.Abs(actual[i] - fitted[i])
	}

	r2 := stat.RSquaredFrom(fitted, actual, nil)
	if !IsFinite(r2) {
		// constant target: every fit explains nothing
		r2 = 0
	}

	return Errors{
		MAE:  absSum / n,
		RMSE: floats.Distance(actual, fitted, 2) / math.Sqrt(n),
		R2:   r2,
	}
}

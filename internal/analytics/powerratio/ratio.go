package powerratio

import (
	"time"

	"github.com/soltixdb/pvratio/internal/analytics"
)

// RatioRecord is a Record with its actual/predicted ratio.
type RatioRecord struct {
	Time     time.Time
	EntityID string
	// Actual is the measurement after the missing-value policy was applied.
	Actual    float64
	Predicted float64
	Ratio     float64
	// Finite is false when Ratio is NaN or infinite. Such ratios are kept
	// as computed; downstream stages apply a NonFinitePolicy.
	Finite bool
}

// Ratio divides actual by the epsilon-stabilised prediction.
func Ratio(actual, predicted float64) float64 {
	return actual / (predicted + Epsilon)
}

// ComputeRatios produces one RatioRecord per dataset record, in input order.
// A nil policy means MissingAsZero.
func ComputeRatios(ds *Dataset, missing MissingActualPolicy) []RatioRecord {
	if missing == nil {
		missing = MissingAsZero
	}

	out := make([]RatioRecord, len(ds.records))
	for i, r := range ds.records {
		actual := missing(r.Actual)
		ratio := Ratio(actual, r.Predicted)
		out[i] = RatioRecord{
			Time:      r.Time,
			EntityID:  r.EntityID,
			Actual:    actual,
			Predicted: r.Predicted,
			Ratio:     ratio,
			Finite:    analytics.IsFinite(ratio),
		}
	}
	return out
}

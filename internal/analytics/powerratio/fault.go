package powerratio

import (
	"math"

	"github.com/soltixdb/pvratio/internal/analytics"
)

// EntityStats aggregates every record of one entity.
type EntityStats struct {
	EntityID string
	Records  int
	// PowerSamples and RatioSamples count the values admitted by the
	// non-finite policy.
	PowerSamples int
	RatioSamples int
	PowerMean    float64
	PowerStd     float64
	RatioMean    float64
	RatioStd     float64
}

// PopulationStats describes the spread of per-entity means across entities.
type PopulationStats struct {
	Entities       int
	PowerMeanMean  float64
	PowerMeanStd   float64
	RatioMeanMean  float64
	RatioMeanStd   float64
	PowerThreshold float64
	RatioThreshold float64
}

// EntityFault is the outlier test of one entity against the population.
type EntityFault struct {
	EntityStats
	PowerDeviation float64
	RatioDeviation float64
	PowerOutlier   bool
	RatioOutlier   bool
}

// Faulty reports whether either test flagged the entity.
func (e EntityFault) Faulty() bool {
	return e.PowerOutlier || e.RatioOutlier
}

// deviationTolerance is the relative margin a deviation must clear above
// its threshold. Identical entity means can leave a population mean one ULP
// off, which must not count as a deviation.
const deviationTolerance = 1e-12

func exceeds(deviation, threshold, mean float64) bool {
	return deviation-threshold > deviationTolerance*math.Max(1, math.Abs(mean))
}

// FaultReport is the result of FaultDetector.Detect.
type FaultReport struct {
	Multiplier float64
	Population PopulationStats
	// Entities holds every entity in first-seen order.
	Entities []EntityFault
	// Faulty is the subset of Entities flagged by either test.
	Faulty []EntityFault
}

// FaultDetector flags entities whose mean output or mean ratio sits more
// than Multiplier standard deviations away from the mean of all entity
// means.
type FaultDetector struct {
	Multiplier  float64
	Policy      NonFinitePolicy
	Parallelism int
}

// NewFaultDetector returns a detector with multiplier k and the default
// non-finite policy.
func NewFaultDetector(k float64) FaultDetector {
	return FaultDetector{Multiplier: k, Policy: DefaultNonFinitePolicy()}
}

// Stats collapses ratios to one EntityStats per entity in first-seen order.
// An entity with a single admitted value has a standard deviation of 0.
func (d FaultDetector) Stats(ratios []RatioRecord) []EntityStats {
	order, groups := partition(ratios, func(r RatioRecord) string { return r.EntityID })
	stats := make([]EntityStats, len(order))

	forEachEntity(order, groups, d.Parallelism, func(slot int, id string, idx []int) {
		power := make([]float64, 0, len(idx))
		ratio := make([]float64, 0, len(idx))
		for _, i := range idx {
			if v, ok := d.Policy.Admit(ratios[i].Actual); ok {
				power = append(power, v)
			}
			if v, ok := d.Policy.Admit(ratios[i].Ratio); ok {
				ratio = append(ratio, v)
			}
		}

		st := EntityStats{
			EntityID:     id,
			Records:      len(idx),
			PowerSamples: len(power),
			RatioSamples: len(ratio),
		}
		st.PowerMean, st.PowerStd = analytics.MeanStdDev(power)
		st.RatioMean, st.RatioStd = analytics.MeanStdDev(ratio)
		stats[slot] = st
	})

	return stats
}

// Detect runs the two-level test. Per-entity stats are computed first;
// only then are the population mean and sample standard deviation of
// those means taken. Entities whose mean is undefined on a metric take no
// part in that metric's population and are never flagged by it.
func (d FaultDetector) Detect(ratios []RatioRecord) FaultReport {
	stats := d.Stats(ratios)

	var powerMeans, ratioMeans []float64
	for _, st := range stats {
		if analytics.IsFinite(st.PowerMean) {
			powerMeans = append(powerMeans, st.PowerMean)
		}
		if analytics.IsFinite(st.RatioMean) {
			ratioMeans = append(ratioMeans, st.RatioMean)
		}
	}

	pop := PopulationStats{Entities: len(stats)}
	pop.PowerMeanMean, pop.PowerMeanStd = analytics.MeanStdDev(powerMeans)
	pop.RatioMeanMean, pop.RatioMeanStd = analytics.MeanStdDev(ratioMeans)
	pop.PowerThreshold = d.Multiplier * pop.PowerMeanStd
	pop.RatioThreshold = d.Multiplier * pop.RatioMeanStd

	report := FaultReport{
		Multiplier: d.Multiplier,
		Population: pop,
		Entities:   make([]EntityFault, len(stats)),
	}
	for i, st := range stats {
		ef := EntityFault{
			EntityStats:    st,
			PowerDeviation: math.Abs(st.PowerMean - pop.PowerMeanMean),
			RatioDeviation: math.Abs(st.RatioMean - pop.RatioMeanMean),
		}
		// NaN comparisons are false, so undefined means never flag
		ef.PowerOutlier = exceeds(ef.PowerDeviation, pop.PowerThreshold, pop.PowerMeanMean)
		ef.RatioOutlier = exceeds(ef.RatioDeviation, pop.RatioThreshold, pop.RatioMeanMean)

		report.Entities[i] = ef
		if ef.Faulty() {
			report.Faulty = append(report.Faulty, ef)
		}
	}

	return report
}

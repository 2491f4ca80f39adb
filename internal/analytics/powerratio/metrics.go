package powerratio

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics"
)

// PerformanceMetrics summarises the output of a whole run.
type PerformanceMetrics struct {
	Records       int     `json:"records"`
	AverageOutput float64 `json:"average_output"`
	PeakOutput    float64 `json:"peak_output"`
	// Efficiency is the mean admitted ratio expressed as a percentage.
	Efficiency float64 `json:"efficiency_pct"`
}

// Performance computes run-level metrics. Output values and ratios go
// through the same non-finite policy as the detectors.
func Performance(ratios []RatioRecord, policy NonFinitePolicy) PerformanceMetrics {
	m := PerformanceMetrics{
		Records:    len(ratios),
		PeakOutput: math.NaN(),
	}

	power := make([]float64, 0, len(ratios))
	ratio := make([]float64, 0, len(ratios))
	for _, r := range ratios {
		if v, ok := policy.Admit(r.Actual); ok {
			power = append(power, v)
			if math.IsNaN(m.PeakOutput) || v > m.PeakOutput {
				m.PeakOutput = v
			}
		}
		if v, ok := policy.Admit(r.Ratio); ok {
			ratio = append(ratio, v)
		}
	}

	m.AverageOutput = analytics.Mean(power)
	m.Efficiency = analytics.Mean(ratio) * 100
	return m
}

// HourlyPoint is the mean output for one hour of the day.
type HourlyPoint struct {
	Hour       int     `json:"hour"`
	MeanOutput float64 `json:"mean_output"`
	Samples    int     `json:"samples"`
}

// HourlyPattern averages output by hour of day across all entities and
// days. Only hours with data are returned, in ascending order.
func HourlyPattern(ratios []RatioRecord, policy NonFinitePolicy) []HourlyPoint {
	var sums [24]float64
	var counts [24]int
	for _, r := range ratios {
		v, ok := policy.Admit(r.Actual)
		if !ok {
			continue
		}
		h := r.Time.UTC().Hour()
		sums[h] += v
		counts[h]++
	}

	var out []HourlyPoint
	for h := range 24 {
		if counts[h] == 0 {
			continue
		}
		out = append(out, HourlyPoint{Hour: h, MeanOutput: sums[h] / float64(counts[h]), Samples: counts[h]})
	}
	return out
}

// DailyPoint is the mean output and ratio for one calendar day.
type DailyPoint struct {
	Day        time.Time `json:"day"`
	MeanOutput float64   `json:"mean_output"`
	MeanRatio  float64   `json:"mean_ratio"`
	Samples    int       `json:"samples"`
}

// DailyTrend averages output and ratio per UTC day, oldest first.
func DailyTrend(ratios []RatioRecord, policy NonFinitePolicy) []DailyPoint {
	type acc struct {
		power, ratio []float64
		n            int
	}
	days := make(map[time.Time]*acc)
	for _, r := range ratios {
		d := dayOf(r.Time)
		a, ok := days[d]
		if !ok {
			a = &acc{}
			days[d] = a
		}
		a.n++
		if v, ok := policy.Admit(r.Actual); ok {
			a.power = append(a.power, v)
		}
		if v, ok := policy.Admit(r.Ratio); ok {
			a.ratio = append(a.ratio, v)
		}
	}

	out := make([]DailyPoint, 0, len(days))
	for d, a := range days {
		out = append(out, DailyPoint{
			Day:        d,
			MeanOutput: analytics.Mean(a.power),
			MeanRatio:  analytics.Mean(a.ratio),
			Samples:    a.n,
		})
	}
	slices.SortFunc(out, func(a, b DailyPoint) int { return a.Day.Compare(b.Day) })
	return out
}

// Heatmap is a day by entity grid of mean smoothed ratios. Cells[i][j]
// belongs to Days[i] and Entities[j]; NaN marks a cell without defined
// smoothed values.
type Heatmap struct {
	Days     []time.Time `json:"days"`
	Entities []string    `json:"entities"`
	Cells    [][]float64 `json:"cells"`
}

// DailyHeatmap pivots defined smoothed ratios into a Heatmap. Entities keep
// first-seen order; days are ascending.
func DailyHeatmap(smoothed []SmoothedRatioRecord) Heatmap {
	type cell struct {
		sum float64
		n   int
	}
	type key struct {
		day    time.Time
		entity string
	}

	var entities []string
	col := make(map[string]int)
	daySet := make(map[time.Time]struct{})
	cells := make(map[key]*cell)

	for _, s := range smoothed {
		if _, ok := col[s.EntityID]; !ok {
			col[s.EntityID] = len(entities)
			entities = append(entities, s.EntityID)
		}
		d := dayOf(s.Time)
		daySet[d] = struct{}{}
		if !s.Defined() {
			continue
		}
		k := key{day: d, entity: s.EntityID}
		c, ok := cells[k]
		if !ok {
			c = &cell{}
			cells[k] = c
		}
		c.sum += s.Smoothed
		c.n++
	}

	days := make([]time.Time, 0, len(daySet))
	for d := range daySet {
		days = append(days, d)
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	grid := make([][]float64, len(days))
	for i, d := range days {
		row := make([]float64, len(entities))
		for j, e := range entities {
			if c, ok := cells[key{day: d, entity: e}]; ok {
				row[j] = c.sum / float64(c.n)
			} else {
				row[j] = math.NaN()
			}
		}
		grid[i] = row
	}

	return Heatmap{Days: days, Entities: entities, Cells: grid}
}

// Sample picks n items deterministically for the given seed and returns
// them in their original order. n <= 0 or n >= len(items) returns a copy of
// items.
func Sample[T any](items []T, n int, seed uint64) []T {
	if n <= 0 || n >= len(items) {
		return slices.Clone(items)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates over the first n slots
	for i := range n {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	picked := idx[:n]
	slices.Sort(picked)

	out := make([]T, n)
	for i, j := range picked {
		out[i] = items[j]
	}
	return out
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

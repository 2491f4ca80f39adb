package powerratio

import (
	"math"
	"time"
)

// MaintenanceFlag is one record whose smoothed ratio is below the cleaning
// threshold.
type MaintenanceFlag struct {
	Time          time.Time
	EntityID      string
	SmoothedRatio float64
}

// MaintenanceFlagger selects records that indicate a panel needs cleaning.
type MaintenanceFlagger struct {
	Threshold float64
}

// NewMaintenanceFlagger returns a flagger with threshold t.
func NewMaintenanceFlagger(t float64) MaintenanceFlagger {
	return MaintenanceFlagger{Threshold: t}
}

type flagKey struct {
	unixNano int64
	entityID string
	bits     uint64
}

// Flag returns every defined record with Smoothed strictly below the
// threshold, in input order. Repeats of the same (time, entity, smoothed)
// triple are reported once; the same entity at other times is kept.
func (f MaintenanceFlagger) Flag(smoothed []SmoothedRatioRecord) []MaintenanceFlag {
	var out []MaintenanceFlag
	seen := make(map[flagKey]struct{})

	for _, s := range smoothed {
		if !s.Defined() || !(s.Smoothed < f.Threshold) {
			continue
		}
		key := flagKey{
			unixNano: s.Time.UnixNano(),
			entityID: s.EntityID,
			bits:     math.Float64bits(s.Smoothed),
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, MaintenanceFlag{
			Time:          s.Time,
			EntityID:      s.EntityID,
			SmoothedRatio: s.Smoothed,
		})
	}

	return out
}

// MaintenanceSummary condenses the flags of one entity.
type MaintenanceSummary struct {
	EntityID    string
	Flags       int
	FirstFlagAt time.Time
	LastFlagAt  time.Time
	MinRatio    float64
}

// SummarizeMaintenance groups flags per entity in first-flagged order.
func SummarizeMaintenance(flags []MaintenanceFlag) []MaintenanceSummary {
	order, groups := partition(flags, func(f MaintenanceFlag) string { return f.EntityID })

	out := make([]MaintenanceSummary, 0, len(order))
	for _, id := range order {
		idx := groups[id]
		sum := MaintenanceSummary{
			EntityID:    id,
			Flags:       len(idx),
			FirstFlagAt: flags[idx[0]].Time,
			LastFlagAt:  flags[idx[0]].Time,
			MinRatio:    flags[idx[0]].SmoothedRatio,
		}
		for _, i := range idx[1:] {
			fl := flags[i]
			if fl.Time.Before(sum.FirstFlagAt) {
				sum.FirstFlagAt = fl.Time
			}
			if fl.Time.After(sum.LastFlagAt) {
				sum.LastFlagAt = fl.Time
			}
			if fl.SmoothedRatio < sum.MinRatio {
				sum.MinRatio = fl.SmoothedRatio
			}
		}
		out = append(out, sum)
	}
	return out
}

package tables

import (
	"strconv"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
)

// SmoothedRow is one record of the smoothed ratio table.
type SmoothedRow struct {
	Time      time.Time `json:"time"`
	EntityID  string    `json:"entity_id"`
	Actual    Value     `json:"actual"`
	Predicted Value     `json:"predicted"`
	Ratio     Value     `json:"ratio"`
	Smoothed  Value     `json:"smoothed"`
	Samples   int       `json:"samples"`
}

// MaintenanceRow is one maintenance flag.
type MaintenanceRow struct {
	Time          time.Time `json:"time"`
	EntityID      string    `json:"entity_id"`
	SmoothedRatio Value     `json:"smoothed_ratio"`
}

// FaultRow is the fault test of one entity.
type FaultRow struct {
	EntityID       string `json:"entity_id"`
	Records        int    `json:"records"`
	PowerMean      Value  `json:"power_mean"`
	PowerStd       Value  `json:"power_std"`
	RatioMean      Value  `json:"ratio_mean"`
	RatioStd       Value  `json:"ratio_std"`
	PowerDeviation Value  `json:"power_deviation"`
	RatioDeviation Value  `json:"ratio_deviation"`
	PowerOutlier   bool   `json:"power_outlier"`
	RatioOutlier   bool   `json:"ratio_outlier"`
}

// Faulty reports whether either test flagged the entity.
func (r FaultRow) Faulty() bool {
	return r.PowerOutlier || r.RatioOutlier
}

// ResultRow is one record of the per-record results download.
type ResultRow struct {
	Time      time.Time `json:"time"`
	EntityID  string    `json:"entity_id"`
	DCPower   Value     `json:"dc_power"`
	Predicted Value     `json:"predicted_power"`
	Ratio     Value     `json:"power_ratio"`
}

var Smoothed = Table[SmoothedRow]{
	Name:   "smoothed",
	Header: []string{"time", "entity_id", "actual", "predicted", "ratio", "smoothed", "samples"},
	toCSV: func(r SmoothedRow) []string {
		return []string{
			formatTime(r.Time), r.EntityID,
			r.Actual.String(), r.Predicted.String(), r.Ratio.String(), r.Smoothed.String(),
			strconv.Itoa(r.Samples),
		}
	},
	fromCSV: func(rec []string) (SmoothedRow, error) {
		f := &fields{record: rec}
		r := SmoothedRow{
			Time:      f.time(),
			EntityID:  f.next(),
			Actual:    f.value(),
			Predicted: f.value(),
			Ratio:     f.value(),
			Smoothed:  f.value(),
			Samples:   f.integer(),
		}
		return r, f.err
	},
}

var Maintenance = Table[MaintenanceRow]{
	Name:   "maintenance",
	Header: []string{"time", "entity_id", "smoothed_ratio"},
	toCSV: func(r MaintenanceRow) []string {
		return []string{formatTime(r.Time), r.EntityID, r.SmoothedRatio.String()}
	},
	fromCSV: func(rec []string) (MaintenanceRow, error) {
		f := &fields{record: rec}
		r := MaintenanceRow{
			Time:          f.time(),
			EntityID:      f.next(),
			SmoothedRatio: f.value(),
		}
		return r, f.err
	},
}

var Faults = Table[FaultRow]{
	Name: "faults",
	Header: []string{
		"entity_id", "records", "power_mean", "power_std", "ratio_mean", "ratio_std",
		"power_deviation", "ratio_deviation", "power_outlier", "ratio_outlier",
	},
	toCSV: func(r FaultRow) []string {
		return []string{
			r.EntityID, strconv.Itoa(r.Records),
			r.PowerMean.String(), r.PowerStd.String(), r.RatioMean.String(), r.RatioStd.String(),
			r.PowerDeviation.String(), r.RatioDeviation.String(),
			strconv.FormatBool(r.PowerOutlier), strconv.FormatBool(r.RatioOutlier),
		}
	},
	fromCSV: func(rec []string) (FaultRow, error) {
		f := &fields{record: rec}
		r := FaultRow{
			EntityID:       f.next(),
			Records:        f.integer(),
			PowerMean:      f.value(),
			PowerStd:       f.value(),
			RatioMean:      f.value(),
			RatioStd:       f.value(),
			PowerDeviation: f.value(),
			RatioDeviation: f.value(),
			PowerOutlier:   f.boolean(),
			RatioOutlier:   f.boolean(),
		}
		return r, f.err
	},
}

var Results = Table[ResultRow]{
	Name:   "results",
	Header: []string{"time", "entity_id", "dc_power", "predicted_power", "power_ratio"},
	toCSV: func(r ResultRow) []string {
		return []string{formatTime(r.Time), r.EntityID, r.DCPower.String(), r.Predicted.String(), r.Ratio.String()}
	},
	fromCSV: func(rec []string) (ResultRow, error) {
		f := &fields{record: rec}
		r := ResultRow{
			Time:      f.time(),
			EntityID:  f.next(),
			DCPower:   f.value(),
			Predicted: f.value(),
			Ratio:     f.value(),
		}
		return r, f.err
	},
}

// SmoothedRows converts smoothed records to rows.
func SmoothedRows(in []powerratio.SmoothedRatioRecord) []SmoothedRow {
	out := make([]SmoothedRow, len(in))
	for i, s := range in {
		out[i] = SmoothedRow{
			Time:      s.Time,
			EntityID:  s.EntityID,
			Actual:    Value(s.Actual),
			Predicted: Value(s.Predicted),
			Ratio:     Value(s.Ratio),
			Smoothed:  Value(s.Smoothed),
			Samples:   s.Samples,
		}
	}
	return out
}

// MaintenanceRows converts flags to rows.
func MaintenanceRows(in []powerratio.MaintenanceFlag) []MaintenanceRow {
	out := make([]MaintenanceRow, len(in))
	for i, f := range in {
		out[i] = MaintenanceRow{Time: f.Time, EntityID: f.EntityID, SmoothedRatio: Value(f.SmoothedRatio)}
	}
	return out
}

// MaintenanceFlags converts rows back to flags.
func MaintenanceFlags(in []MaintenanceRow) []powerratio.MaintenanceFlag {
	out := make([]powerratio.MaintenanceFlag, len(in))
	for i, r := range in {
		out[i] = powerratio.MaintenanceFlag{Time: r.Time, EntityID: r.EntityID, SmoothedRatio: r.SmoothedRatio.Float()}
	}
	return out
}

// FaultRows converts every entity of a fault report to a row.
func FaultRows(report powerratio.FaultReport) []FaultRow {
	out := make([]FaultRow, len(report.Entities))
	for i, e := range report.Entities {
		out[i] = FaultRow{
			EntityID:       e.EntityID,
			Records:        e.Records,
			PowerMean:      Value(e.PowerMean),
			PowerStd:       Value(e.PowerStd),
			RatioMean:      Value(e.RatioMean),
			RatioStd:       Value(e.RatioStd),
			PowerDeviation: Value(e.PowerDeviation),
			RatioDeviation: Value(e.RatioDeviation),
			PowerOutlier:   e.PowerOutlier,
			RatioOutlier:   e.RatioOutlier,
		}
	}
	return out
}

// ResultRows converts ratio records to rows.
func ResultRows(in []powerratio.RatioRecord) []ResultRow {
	out := make([]ResultRow, len(in))
	for i, r := range in {
		out[i] = ResultRow{
			Time:      r.Time,
			EntityID:  r.EntityID,
			DCPower:   Value(r.Actual),
			Predicted: Value(r.Predicted),
			Ratio:     Value(r.Ratio),
		}
	}
	return out
}

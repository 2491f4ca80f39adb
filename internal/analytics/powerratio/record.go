// Package powerratio compares the measured output of solar panels with a
// model prediction and derives two maintenance signals from the ratio:
// panels whose smoothed ratio drops below a cleaning threshold, and panels
// whose long run averages sit far outside the fleet.
//
// The pipeline is a pure batch transform:
//
//	Dataset -> ComputeRatios -> RollingSmoother -> MaintenanceFlagger
//	                        \-> FaultDetector
//
// Every run builds its own state from the input batch and returns read-only
// result tables. Nothing is shared between runs.
package powerratio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Epsilon is added to the predicted output before dividing.
	Epsilon = 1e-6

	// DefaultWindowSize is the number of trailing ratios averaged per entity.
	DefaultWindowSize = 48

	// DefaultCleaningThreshold is the smoothed ratio below which a panel needs cleaning.
	DefaultCleaningThreshold = 0.85

	// DefaultFaultMultiplier is the number of standard deviations that marks an outlier entity.
	DefaultFaultMultiplier = 3.0
)

// Parameter domains.
const (
	MinCleaningThreshold = 0.5
	MaxCleaningThreshold = 1.0
	MinFaultMultiplier   = 1.0
	MaxFaultMultiplier   = 5.0
)

var (
	// ErrMissingEntity is returned when a record carries no entity identifier.
	ErrMissingEntity = errors.New("record has no entity identifier")

	// ErrNilDataset is returned when the analyzer is handed no dataset.
	ErrNilDataset = errors.New("dataset is nil")
)

// Record is one timestamped measurement of a single entity.
type Record struct {
	Time     time.Time
	EntityID string
	// Actual is nil when the measurement is missing.
	Actual *float64
	// Predicted is supplied by an external model.
	Predicted float64
}

// Float returns a pointer to v, for filling Record.Actual.
func Float(v float64) *float64 {
	return &v
}

// Dataset is an immutable batch of records partitioned by entity. Records
// keep their input order, which must be timestamp order within an entity.
type Dataset struct {
	records  []Record
	entities []string
	index    map[string][]int
}

// NewDataset validates and indexes records. The slice is copied.
func NewDataset(records []Record) (*Dataset, error) {
	ds := &Dataset{
		records: make([]Record, len(records)),
		index:   make(map[string][]int),
	}
	copy(ds.records, records)

	for i, r := range ds.records {
		if strings.TrimSpace(r.EntityID) == "" {
			return nil, fmt.Errorf("record %d at %s: %w", i, r.Time.Format(time.RFC3339), ErrMissingEntity)
		}
		if _, seen := ds.index[r.EntityID]; !seen {
			ds.entities = append(ds.entities, r.EntityID)
		}
		ds.index[r.EntityID] = append(ds.index[r.EntityID], i)
	}

	return ds, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Records returns a copy of all records in input order.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Entities returns entity identifiers in first-seen order.
func (d *Dataset) Entities() []string {
	out := make([]string, len(d.entities))
	copy(out, d.entities)
	return out
}

// EntityRecords returns the records of one entity in input order.
func (d *Dataset) EntityRecords(entityID string) []Record {
	idx := d.index[entityID]
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = d.records[j]
	}
	return out
}

// HasEntity reports whether entityID occurs in the dataset.
func (d *Dataset) HasEntity(entityID string) bool {
	_, ok := d.index[entityID]
	return ok
}

// partition groups positions of a record sequence by entity, keeping both
// the first-seen entity order and the in-entity order.
func partition[T any](items []T, entityOf func(T) string) ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i, it := range items {
		id := entityOf(it)
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], i)
	}
	return order, groups
}

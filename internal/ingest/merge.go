package ingest

import (
	"fmt"
	"slices"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/predictor"
)

// Row is a generation reading joined with the weather of its plant.
type Row struct {
	Time     time.Time
	PlantID  string
	EntityID string
	DCPower  *float64
	Features predictor.Features
}

type joinKey struct {
	unixNano int64
	plantID  string
}

// Merge inner-joins generation and weather rows on (timestamp, plant id).
// The entity of a row is the generation source key, or the plant id when
// the export has no source key. Rows are stably sorted by timestamp.
func Merge(gen []GenerationRow, weather []WeatherRow) []Row {
	byKey := make(map[joinKey][]int, len(weather))
	for i, w := range weather {
		k := joinKey{unixNano: w.Time.UnixNano(), plantID: w.PlantID}
		byKey[k] = append(byKey[k], i)
	}

	rows := make([]Row, 0, len(gen))
	for _, g := range gen {
		matches := byKey[joinKey{unixNano: g.Time.UnixNano(), plantID: g.PlantID}]
		entity := g.SourceKey
		if entity == "" {
			entity = g.PlantID
		}
		for _, wi := range matches {
			w := weather[wi]
			rows = append(rows, Row{
				Time:     g.Time,
				PlantID:  g.PlantID,
				EntityID: entity,
				DCPower:  g.DCPower,
				Features: predictor.FeaturesAt(g.Time, w.AmbientTemperature, w.ModuleTemperature, w.Irradiation),
			})
		}
	}

	slices.SortStableFunc(rows, func(a, b Row) int { return a.Time.Compare(b.Time) })
	return rows
}

// Build is the outcome of BuildDataset.
type Build struct {
	Dataset *powerratio.Dataset
	Rows    []Row
	// Model is set when BuildDataset fitted the predictor itself.
	Model *predictor.ModelInfo
}

// BuildDataset annotates rows with predictions and returns the dataset. A
// nil predictor fits a linear model on the rows, with missing output read
// as zero.
func BuildDataset(rows []Row, p predictor.Predictor) (*Build, error) {
	features := make([]predictor.Features, len(rows))
	records := make([]powerratio.Record, len(rows))
	targets := make([]float64, len(rows))
	for i, r := range rows {
		features[i] = r.Features
		records[i] = powerratio.Record{Time: r.Time, EntityID: r.EntityID, Actual: r.DCPower}
		targets[i] = powerratio.MissingAsZero(r.DCPower)
	}

	build := &Build{Rows: rows}
	if p == nil {
		model, err := predictor.FitLinear(features, targets, predictor.FitOptions{})
		if err != nil {
			return nil, fmt.Errorf("fit predictor: %w", err)
		}
		info := model.Info()
		build.Model = &info
		p = model
	}

	if err := predictor.Annotate(records, features, p); err != nil {
		return nil, err
	}

	ds, err := powerratio.NewDataset(records)
	if err != nil {
		return nil, err
	}
	build.Dataset = ds
	return build, nil
}

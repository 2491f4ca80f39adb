// Package ingest reads plant generation and weather CSV exports and turns
// them into an analysis dataset.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column names of the generation and weather exports.
const (
	ColDateTime           = "date_time"
	ColPlantID            = "plant_id"
	ColSourceKey          = "source_key"
	ColDCPower            = "dc_power"
	ColACPower            = "ac_power"
	ColDailyYield         = "daily_yield"
	ColTotalYield         = "total_yield"
	ColAmbientTemperature = "ambient_temperature"
	ColModuleTemperature  = "module_temperature"
	ColIrradiation        = "irradiation"
)

// maxReportedErrors caps IngestionReport.Errors.
const maxReportedErrors = 20

// TimeLayouts are tried in order when parsing DATE_TIME.
var TimeLayouts = []string{
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// ErrMissingHeader is returned when a required column is absent.
var ErrMissingHeader = errors.New("missing required csv header")

// GenerationRow is one inverter reading.
type GenerationRow struct {
	Time      time.Time
	PlantID   string
	SourceKey string
	// DCPower is nil when the cell is empty or not a number.
	DCPower    *float64
	ACPower    float64
	DailyYield float64
	TotalYield float64
}

// WeatherRow is one plant weather sensor reading.
type WeatherRow struct {
	Time               time.Time
	PlantID            string
	SourceKey          string
	AmbientTemperature float64
	ModuleTemperature  float64
	Irradiation        float64
}

// IngestionReport counts what happened to every data line.
type IngestionReport struct {
	Total        int      `json:"total"`
	Parsed       int      `json:"parsed"`
	Failed       int      `json:"failed"`
	MissingPower int      `json:"missing_power,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

func (r *IngestionReport) fail(line int, err error) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("line %d: %v", line, err))
	}
}

// ReadGeneration parses a generation export. Rows with a bad timestamp or
// no plant id are counted as failed and skipped.
func ReadGeneration(ctx context.Context, r io.Reader) ([]GenerationRow, *IngestionReport, error) {
	var rows []GenerationRow
	report, err := readCSV(ctx, r, []string{ColDateTime, ColPlantID, ColDCPower}, func(get getter) error {
		ts, err := ParseTime(get(ColDateTime))
		if err != nil {
			return err
		}
		plant := get(ColPlantID)
		if plant == "" {
			return errors.New("plant_id is empty")
		}
		row := GenerationRow{
			Time:       ts,
			PlantID:    plant,
			SourceKey:  get(ColSourceKey),
			DCPower:    parseOptional(get(ColDCPower)),
			ACPower:    parseOrZero(get(ColACPower)),
			DailyYield: parseOrZero(get(ColDailyYield)),
			TotalYield: parseOrZero(get(ColTotalYield)),
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	for _, row := range rows {
		if row.DCPower == nil {
			report.MissingPower++
		}
	}
	return rows, report, nil
}

// ReadWeather parses a weather sensor export. Numeric cells that are empty
// or invalid read as 0.
func ReadWeather(ctx context.Context, r io.Reader) ([]WeatherRow, *IngestionReport, error) {
	var rows []WeatherRow
	required := []string{ColDateTime, ColPlantID, ColAmbientTemperature, ColModuleTemperature, ColIrradiation}
	report, err := readCSV(ctx, r, required, func(get getter) error {
		ts, err := ParseTime(get(ColDateTime))
		if err != nil {
			return err
		}
		plant := get(ColPlantID)
		if plant == "" {
			return errors.New("plant_id is empty")
		}
		rows = append(rows, WeatherRow{
			Time:               ts,
			PlantID:            plant,
			SourceKey:          get(ColSourceKey),
			AmbientTemperature: parseOrZero(get(ColAmbientTemperature)),
			ModuleTemperature:  parseOrZero(get(ColModuleTemperature)),
			Irradiation:        parseOrZero(get(ColIrradiation)),
		})
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	return rows, report, nil
}

// ParseTime parses s with the first matching layout in TimeLayouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %q", s)
}

type getter func(col string) string

func readCSV(ctx context.Context, r io.Reader, required []string, parse func(getter) error) (*IngestionReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &IngestionReport{}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return report, nil
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	headerMap := make(map[string]int, len(headers))
	for i, h := range headers {
		// spreadsheet exports may start with a BOM
		h = strings.TrimPrefix(h, "\ufeff")
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := headerMap[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, col)
		}
	}

	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		report.Total++
		if err != nil {
			report.fail(line, err)
			continue
		}

		get := func(col string) string {
			if idx, ok := headerMap[col]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}
		if err := parse(get); err != nil {
			report.fail(line, err)
			continue
		}
		report.Parsed++
	}

	return report, nil
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	return &v
}

func parseOrZero(s string) float64 {
	if v := parseOptional(s); v != nil {
		return *v
	}
	return 0
}

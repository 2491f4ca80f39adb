package handlers

import (
	"math"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/models"
	"github.com/soltixdb/pvratio/internal/predictor"
	"github.com/soltixdb/pvratio/internal/services"
	"github.com/soltixdb/pvratio/internal/tables"
)

const dayLayout = "2006-01-02"

func paramsView(p powerratio.Params) models.ParamsView {
	v := models.ParamsView{
		WindowSize:        p.WindowSize,
		CleaningThreshold: p.CleaningThreshold,
		FaultMultiplier:   p.FaultMultiplier,
		NonFinitePolicy:   string(p.NonFinite.Mode),
	}
	if p.NonFinite.Mode == powerratio.NonFiniteSentinel {
		s := tables.Value(p.NonFinite.Sentinel)
		v.Sentinel = &s
	}
	return v
}

func runSummary(run *services.Run) models.RunSummary {
	res := run.Result
	return models.RunSummary{
		ID:                  run.ID,
		Source:              run.Source,
		CreatedAt:           run.CreatedAt.Format(time.RFC3339),
		ExpiresAt:           run.ExpiresAt.Format(time.RFC3339),
		Params:              paramsView(res.Params),
		Records:             len(res.Ratios),
		Entities:            len(res.Entities),
		MaintenanceFlags:    len(res.Maintenance),
		MaintenanceEntities: len(res.MaintenanceSummaries()),
		FaultyEntities:      len(res.Faults.Faulty),
		DurationMs:          res.Duration.Milliseconds(),
		Alerts: models.AlertsView{
			Published: run.Alerts.Published,
			Failed:    run.Alerts.Failed,
			Error:     run.Alerts.Error,
		},
	}
}

func modelView(info *predictor.ModelInfo) *models.ModelView {
	if info == nil {
		return nil
	}
	return &models.ModelView{
		Features:     info.Features,
		Coefficients: finiteMap(info.Coefficients),
		Intercept:    finiteOrZero(info.Intercept),
		Importance:   finiteMap(info.Importance),
		Samples:      info.Samples,
		MAE:          tables.Value(info.MAE),
		RMSE:         tables.Value(info.RMSE),
		R2:           tables.Value(info.R2),
	}
}

func runResponse(run *services.Run) models.RunResponse {
	resp := models.RunResponse{
		RunSummary: runSummary(run),
		EntityIDs:  run.Result.Entities,
		Model:      modelView(run.Model),
	}
	if in := run.Ingestion; in != nil {
		resp.Ingestion = &models.IngestionView{
			Generation: in.Generation,
			Weather:    in.Weather,
			MergedRows: in.MergedRows,
		}
	}
	return resp
}

func maintenanceResponse(run *services.Run) models.MaintenanceResponse {
	res := run.Result
	summaries := res.MaintenanceSummaries()
	entities := make([]models.MaintenanceEntityView, len(summaries))
	for i, s := range summaries {
		entities[i] = models.MaintenanceEntityView{
			EntityID:         s.EntityID,
			Flags:            s.Flags,
			FirstFlaggedAt:   s.FirstFlagAt.Format(time.RFC3339),
			LastFlaggedAt:    s.LastFlagAt.Format(time.RFC3339),
			MinSmoothedRatio: tables.Value(s.MinRatio),
		}
	}
	return models.MaintenanceResponse{
		RunID:     run.ID,
		Threshold: res.Params.CleaningThreshold,
		Count:     len(res.Maintenance),
		Entities:  entities,
		Flags:     tables.MaintenanceRows(res.Maintenance),
	}
}

func faultsResponse(run *services.Run) models.FaultsResponse {
	report := run.Result.Faults
	pop := report.Population
	faulty := make([]string, len(report.Faulty))
	for i, f := range report.Faulty {
		faulty[i] = f.EntityID
	}
	return models.FaultsResponse{
		RunID:      run.ID,
		Multiplier: report.Multiplier,
		Population: models.PopulationView{
			Entities:       pop.Entities,
			PowerMeanMean:  tables.Value(pop.PowerMeanMean),
			PowerMeanStd:   tables.Value(pop.PowerMeanStd),
			RatioMeanMean:  tables.Value(pop.RatioMeanMean),
			RatioMeanStd:   tables.Value(pop.RatioMeanStd),
			PowerThreshold: tables.Value(pop.PowerThreshold),
			RatioThreshold: tables.Value(pop.RatioThreshold),
		},
		Faulty:   faulty,
		Entities: tables.FaultRows(report),
	}
}

func metricsResponse(runID string, m *services.Metrics) models.MetricsResponse {
	hourly := make([]models.HourlyView, len(m.Hourly))
	for i, p := range m.Hourly {
		hourly[i] = models.HourlyView{Hour: p.Hour, MeanOutput: tables.Value(p.MeanOutput), Samples: p.Samples}
	}

	daily := make([]models.DailyView, len(m.Daily))
	for i, p := range m.Daily {
		daily[i] = models.DailyView{
			Day:        p.Day.Format(dayLayout),
			MeanOutput: tables.Value(p.MeanOutput),
			MeanRatio:  tables.Value(p.MeanRatio),
			Samples:    p.Samples,
		}
	}

	days := make([]string, len(m.Heatmap.Days))
	for i, d := range m.Heatmap.Days {
		days[i] = d.Format(dayLayout)
	}
	cells := make([][]tables.Value, len(m.Heatmap.Cells))
	for i, row := range m.Heatmap.Cells {
		cells[i] = make([]tables.Value, len(row))
		for j, v := range row {
			cells[i][j] = tables.Value(v)
		}
	}

	return models.MetricsResponse{
		RunID: runID,
		Performance: models.PerformanceView{
			Records:       m.Performance.Records,
			AverageOutput: tables.Value(m.Performance.AverageOutput),
			PeakOutput:    tables.Value(m.Performance.PeakOutput),
			EfficiencyPct: tables.Value(m.Performance.Efficiency),
		},
		Hourly: hourly,
		Daily:  daily,
		Heatmap: models.HeatmapView{
			Days:     days,
			Entities: m.Heatmap.Entities,
			Cells:    cells,
		},
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finiteMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = finiteOrZero(v)
	}
	return out
}

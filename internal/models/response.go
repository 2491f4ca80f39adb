package models

import (
	"github.com/soltixdb/pvratio/internal/ingest"
	"github.com/soltixdb/pvratio/internal/tables"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Runs      int    `json:"runs"`
}

// ParamsView shows the parameters a run used
type ParamsView struct {
	WindowSize        int           `json:"window_size"`
	CleaningThreshold float64       `json:"cleaning_threshold"`
	FaultMultiplier   float64       `json:"fault_multiplier"`
	NonFinitePolicy   string        `json:"non_finite_policy"`
	Sentinel          *tables.Value `json:"sentinel,omitempty"`
}

// AlertsView counts the alerts of a run
type AlertsView struct {
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// RunSummary represents the headline numbers of an analysis run
type RunSummary struct {
	ID                  string     `json:"id"`
	Source              string     `json:"source"`
	CreatedAt           string     `json:"created_at"`
	ExpiresAt           string     `json:"expires_at"`
	Params              ParamsView `json:"params"`
	Records             int        `json:"records"`
	Entities            int        `json:"entities"`
	MaintenanceFlags    int        `json:"maintenance_flags"`
	MaintenanceEntities int        `json:"maintenance_entities"`
	FaultyEntities      int        `json:"faulty_entities"`
	DurationMs          int64      `json:"duration_ms"`
	Alerts              AlertsView `json:"alerts"`
}

// ModelView describes a predictor fitted on uploaded data
type ModelView struct {
	Features     []string           `json:"features"`
	Coefficients map[string]float64 `json:"coefficients"`
	Intercept    float64            `json:"intercept"`
	Importance   map[string]float64 `json:"importance"`
	Samples      int                `json:"samples"`
	MAE          tables.Value       `json:"mae"`
	RMSE         tables.Value       `json:"rmse"`
	R2           tables.Value       `json:"r2"`
}

// IngestionView reports how uploaded files were read
type IngestionView struct {
	Generation *ingest.IngestionReport `json:"generation"`
	Weather    *ingest.IngestionReport `json:"weather"`
	MergedRows int                     `json:"merged_rows"`
}

// RunResponse represents one analysis run
type RunResponse struct {
	RunSummary
	EntityIDs []string       `json:"entity_ids"`
	Model     *ModelView     `json:"model,omitempty"`
	Ingestion *IngestionView `json:"ingestion,omitempty"`
}

// RunListResponse represents list runs response
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// MaintenanceEntityView condenses the flags of one entity
type MaintenanceEntityView struct {
	EntityID         string       `json:"entity_id"`
	Flags            int          `json:"flags"`
	FirstFlaggedAt   string       `json:"first_flagged_at"`
	LastFlaggedAt    string       `json:"last_flagged_at"`
	MinSmoothedRatio tables.Value `json:"min_smoothed_ratio"`
}

// MaintenanceResponse represents the maintenance flags of a run
type MaintenanceResponse struct {
	RunID     string                  `json:"run_id"`
	Threshold float64                 `json:"threshold"`
	Count     int                     `json:"count"`
	Entities  []MaintenanceEntityView `json:"entities"`
	Flags     []tables.MaintenanceRow `json:"flags"`
}

// PopulationView describes the spread of per-entity means
type PopulationView struct {
	Entities       int          `json:"entities"`
	PowerMeanMean  tables.Value `json:"power_mean_mean"`
	PowerMeanStd   tables.Value `json:"power_mean_std"`
	RatioMeanMean  tables.Value `json:"ratio_mean_mean"`
	RatioMeanStd   tables.Value `json:"ratio_mean_std"`
	PowerThreshold tables.Value `json:"power_threshold"`
	RatioThreshold tables.Value `json:"ratio_threshold"`
}

// FaultsResponse represents the fault report of a run
type FaultsResponse struct {
	RunID      string            `json:"run_id"`
	Multiplier float64           `json:"multiplier"`
	Population PopulationView    `json:"population"`
	Faulty     []string          `json:"faulty"`
	Entities   []tables.FaultRow `json:"entities"`
}

// SmoothedResponse represents a page of smoothed records
type SmoothedResponse struct {
	RunID  string               `json:"run_id"`
	Entity string               `json:"entity,omitempty"`
	Count  int                  `json:"count"`
	Rows   []tables.SmoothedRow `json:"rows"`
}

// PerformanceView summarises output over a run
type PerformanceView struct {
	Records       int          `json:"records"`
	AverageOutput tables.Value `json:"average_output"`
	PeakOutput    tables.Value `json:"peak_output"`
	EfficiencyPct tables.Value `json:"efficiency_pct"`
}

// HourlyView is the mean output of one hour of day
type HourlyView struct {
	Hour       int          `json:"hour"`
	MeanOutput tables.Value `json:"mean_output"`
	Samples    int          `json:"samples"`
}

// DailyView is the mean output and ratio of one day
type DailyView struct {
	Day        string       `json:"day"` // Format: YYYY-MM-DD
	MeanOutput tables.Value `json:"mean_output"`
	MeanRatio  tables.Value `json:"mean_ratio"`
	Samples    int          `json:"samples"`
}

// HeatmapView is a day by entity grid of mean smoothed ratios
type HeatmapView struct {
	Days     []string         `json:"days"`
	Entities []string         `json:"entities"`
	Cells    [][]tables.Value `json:"cells"`
}

// MetricsResponse represents the supplementary views of a run
type MetricsResponse struct {
	RunID       string          `json:"run_id"`
	Performance PerformanceView `json:"performance"`
	Hourly      []HourlyView    `json:"hourly"`
	Daily       []DailyView     `json:"daily"`
	Heatmap     HeatmapView     `json:"heatmap"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

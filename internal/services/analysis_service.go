package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
	"github.com/soltixdb/pvratio/internal/config"
	"github.com/soltixdb/pvratio/internal/ingest"
	"github.com/soltixdb/pvratio/internal/logging"
	"github.com/soltixdb/pvratio/internal/predictor"
	"github.com/soltixdb/pvratio/internal/queue"
	"github.com/soltixdb/pvratio/internal/tables"
)

// Run sources
const (
	SourceRecords = "records"
	SourceUpload  = "upload"
)

// DefaultAlertTimeout bounds alert publishing after a run
const DefaultAlertTimeout = 5 * time.Second

// ParamOverrides replaces individual defaults of the configured parameters.
// Nil fields keep the default.
type ParamOverrides struct {
	WindowSize        *int
	CleaningThreshold *float64
	FaultMultiplier   *float64
	NonFinitePolicy   *string
	Sentinel          *float64
}

// AnalyzeRequest is either a list of annotated records or a pair of plant
// CSV exports. Generation and Weather take precedence when both are set.
type AnalyzeRequest struct {
	Records    []powerratio.Record
	Generation io.Reader
	Weather    io.Reader
	Params     ParamOverrides
}

// IngestionSummary describes how uploaded CSVs were turned into a dataset.
type IngestionSummary struct {
	Generation *ingest.IngestionReport `json:"generation"`
	Weather    *ingest.IngestionReport `json:"weather"`
	MergedRows int                     `json:"merged_rows"`
}

// AlertStats counts the alerts sent for a run.
type AlertStats struct {
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Run is one stored analysis.
type Run struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Source    string
	Result    *powerratio.Result
	// Model is set when the predictor was fitted on uploaded data.
	Model     *predictor.ModelInfo
	Ingestion *IngestionSummary
	Alerts    AlertStats

	seed uint64
}

// Metrics bundles the supplementary views of a run.
type Metrics struct {
	Performance powerratio.PerformanceMetrics
	Hourly      []powerratio.HourlyPoint
	Daily       []powerratio.DailyPoint
	Heatmap     powerratio.Heatmap
}

// AnalysisService runs analyses, keeps their results and publishes alerts
type AnalysisService struct {
	logger        *logging.Logger
	defaults      powerratio.Params
	sampleSize    int
	store         *ResultStore
	publisher     queue.Publisher
	subjectPrefix string
	alertTimeout  time.Duration
}

// NewAnalysisService creates a service from the analysis, results and queue
// sections of cfg. publisher may be nil to disable alerts.
func NewAnalysisService(logger *logging.Logger, cfg *config.Config, publisher queue.Publisher) (*AnalysisService, error) {
	defaults, err := cfg.Analysis.Params()
	if err != nil {
		return nil, fmt.Errorf("analysis defaults: %w", err)
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("analysis defaults: %w", err)
	}

	return &AnalysisService{
		logger:        logger,
		defaults:      defaults,
		sampleSize:    cfg.Analysis.SampleSize,
		store:         NewResultStore(cfg.Results.TTL, cfg.Results.MaxRuns),
		publisher:     publisher,
		subjectPrefix: cfg.Queue.SubjectPrefix,
		alertTimeout:  DefaultAlertTimeout,
	}, nil
}

// Defaults returns the configured analysis parameters
func (s *AnalysisService) Defaults() powerratio.Params {
	return s.defaults
}

// Close stops background work. The publisher is owned by the caller.
func (s *AnalysisService) Close() {
	s.store.Stop()
}

// ResolveParams applies overrides to the configured defaults and validates
// the outcome.
func (s *AnalysisService) ResolveParams(o ParamOverrides) (powerratio.Params, error) {
	p := s.defaults
	if o.WindowSize != nil {
		p.WindowSize = *o.WindowSize
	}
	if o.CleaningThreshold != nil {
		p.CleaningThreshold = *o.CleaningThreshold
	}
	if o.FaultMultiplier != nil {
		p.FaultMultiplier = *o.FaultMultiplier
	}
	if o.NonFinitePolicy != nil {
		mode, err := powerratio.ParseNonFiniteMode(*o.NonFinitePolicy)
		if err != nil {
			return p, NewServiceError(CodeInvalidParams, err.Error())
		}
		p.NonFinite.Mode = mode
	}
	if o.Sentinel != nil {
		p.NonFinite.Sentinel = *o.Sentinel
	}

	if err := p.Validate(); err != nil {
		return p, NewServiceError(CodeInvalidParams, err.Error())
	}
	return p, nil
}

// Run analyzes the request, stores the run and publishes its alerts.
// Alert failures are logged and counted, never returned.
func (s *AnalysisService) Run(ctx context.Context, req AnalyzeRequest) (*Run, error) {
	params, err := s.ResolveParams(req.Params)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	run := &Run{
		ID:        id.String(),
		CreatedAt: time.Now().UTC(),
		Source:    SourceRecords,
		seed:      binary.BigEndian.Uint64(id[:8]),
	}
	ctx = logging.WithRunID(ctx, run.ID)
	logger := s.logger.WithContext(ctx)

	var ds *powerratio.Dataset
	if req.Generation != nil || req.Weather != nil {
		run.Source = SourceUpload
		ds, err = s.ingest(ctx, run, req)
	} else {
		ds, err = powerratio.NewDataset(req.Records)
		if err != nil {
			err = NewServiceError(CodeInvalidRequest, err.Error())
		}
	}
	if err != nil {
		logger.Warn("Analysis input rejected", "source", run.Source, "error", err)
		return nil, err
	}

	logger.Info("Analysis started",
		"source", run.Source,
		"records", ds.Len(),
		"entities", len(ds.Entities()),
		"window_size", params.WindowSize,
		"cleaning_threshold", params.CleaningThreshold,
		"fault_multiplier", params.FaultMultiplier,
	)

	result, err := powerratio.Analyze(ds, params)
	if err != nil {
		logger.Error("Analysis failed", "error", err)
		return nil, NewServiceError(CodeInternal, "analysis failed: "+err.Error())
	}
	run.Result = result

	run.Alerts = s.publishAlerts(ctx, run)

	for _, evicted := range s.store.Put(run) {
		logger.Debug("Evicted run", "evicted_run_id", evicted)
	}

	logger.Info("Analysis completed",
		"records", len(result.Ratios),
		"entities", len(result.Entities),
		"maintenance_flags", len(result.Maintenance),
		"maintenance_entities", len(result.MaintenanceSummaries()),
		"faulty_entities", len(result.Faults.Faulty),
		"alerts_published", run.Alerts.Published,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return run, nil
}

func (s *AnalysisService) ingest(ctx context.Context, run *Run, req AnalyzeRequest) (*powerratio.Dataset, error) {
	if req.Generation == nil || req.Weather == nil {
		return nil, NewServiceError(CodeInvalidRequest, "both generation and weather data are required")
	}

	gen, genReport, err := ingest.ReadGeneration(ctx, req.Generation)
	if err != nil {
		return nil, ingestError("generation", err)
	}
	weather, weatherReport, err := ingest.ReadWeather(ctx, req.Weather)
	if err != nil {
		return nil, ingestError("weather", err)
	}

	rows := ingest.Merge(gen, weather)
	run.Ingestion = &IngestionSummary{
		Generation: genReport,
		Weather:    weatherReport,
		MergedRows: len(rows),
	}
	if len(rows) == 0 {
		return nil, NewServiceErrorWithDetails(CodeIngestFailed,
			"no generation rows matched weather rows on timestamp and plant",
			map[string]interface{}{"generation_rows": len(gen), "weather_rows": len(weather)})
	}

	build, err := ingest.BuildDataset(rows, nil)
	if err != nil {
		return nil, ingestError("dataset", err)
	}
	run.Model = build.Model
	return build.Dataset, nil
}

func ingestError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewServiceErrorWithDetails(CodeIngestFailed, fmt.Sprintf("%s: %v", stage, err),
		map[string]interface{}{"stage": stage})
}

// Get returns a stored run
func (s *AnalysisService) Get(id string) (*Run, error) {
	run, ok := s.store.Get(id)
	if !ok {
		return nil, runNotFound(id)
	}
	return run, nil
}

// List returns stored runs, newest first
func (s *AnalysisService) List() []*Run {
	return s.store.List()
}

// Delete removes a stored run
func (s *AnalysisService) Delete(id string) error {
	if !s.store.Delete(id) {
		return runNotFound(id)
	}
	return nil
}

// Smoothed returns the smoothed records of a run, optionally restricted to
// one entity and reduced to a deterministic sample. sample < 0 uses the
// configured sample size; 0 returns every record.
func (s *AnalysisService) Smoothed(id, entity string, sample int) ([]powerratio.SmoothedRatioRecord, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	rows := run.Result.Smoothed
	if entity != "" {
		filtered := make([]powerratio.SmoothedRatioRecord, 0)
		for _, r := range rows {
			if r.EntityID == entity {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	if sample < 0 {
		sample = s.sampleSize
	}
	return powerratio.Sample(rows, sample, run.seed), nil
}

// Metrics computes the supplementary views of a run
func (s *AnalysisService) Metrics(id string) (*Metrics, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	res := run.Result
	policy := res.Params.NonFinite
	return &Metrics{
		Performance: powerratio.Performance(res.Ratios, policy),
		Hourly:      powerratio.HourlyPattern(res.Ratios, policy),
		Daily:       powerratio.DailyTrend(res.Ratios, policy),
		Heatmap:     powerratio.DailyHeatmap(res.Smoothed),
	}, nil
}

// Export writes one result table of a run to w
func (s *AnalysisService) Export(w io.Writer, id, table, format string) (tables.Format, error) {
	f, err := tables.ParseFormat(format)
	if err != nil {
		return "", NewServiceError(CodeInvalidFormat, err.Error())
	}

	run, err := s.Get(id)
	if err != nil {
		return "", err
	}

	if err := tables.Export(w, table, f, run.Result); err != nil {
		if errors.Is(err, tables.ErrUnknownTable) {
			return "", NewServiceErrorWithDetails(CodeUnknownTable, err.Error(),
				map[string]interface{}{"tables": tables.Names})
		}
		return "", NewServiceError(CodeInternal, "export failed: "+err.Error())
	}
	return f, nil
}

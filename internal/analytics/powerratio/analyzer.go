package powerratio

import (
	"fmt"
	"time"
)

// Params configures one analysis run.
type Params struct {
	WindowSize        int
	CleaningThreshold float64
	FaultMultiplier   float64
	NonFinite         NonFinitePolicy
	// Missing defaults to MissingAsZero when nil.
	Missing     MissingActualPolicy
	Parallelism int
}

// DefaultParams returns W=48, T=0.85, K=3 with non-finite values excluded.
func DefaultParams() Params {
	return Params{
		WindowSize:        DefaultWindowSize,
		CleaningThreshold: DefaultCleaningThreshold,
		FaultMultiplier:   DefaultFaultMultiplier,
		NonFinite:         DefaultNonFinitePolicy(),
		Missing:           MissingAsZero,
	}
}

// Validate checks every parameter against its domain.
func (p Params) Validate() error {
	if p.WindowSize < 1 {
		return fmt.Errorf("window size must be >= 1, got %d", p.WindowSize)
	}
	if !(p.CleaningThreshold >= MinCleaningThreshold && p.CleaningThreshold <= MaxCleaningThreshold) {
		return fmt.Errorf("cleaning threshold must be in [%.1f, %.1f], got %v",
			MinCleaningThreshold, MaxCleaningThreshold, p.CleaningThreshold)
	}
	if !(p.FaultMultiplier >= MinFaultMultiplier && p.FaultMultiplier <= MaxFaultMultiplier) {
		return fmt.Errorf("fault multiplier must be in [%.1f, %.1f], got %v",
			MinFaultMultiplier, MaxFaultMultiplier, p.FaultMultiplier)
	}
	if p.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0, got %d", p.Parallelism)
	}
	return p.NonFinite.validate()
}

// Result holds the read-only output tables of one run.
type Result struct {
	Params      Params
	Entities    []string
	Ratios      []RatioRecord
	Smoothed    []SmoothedRatioRecord
	Maintenance []MaintenanceFlag
	Faults      FaultReport
	Duration    time.Duration
}

// MaintenanceSummaries groups the maintenance flags per entity.
func (r *Result) MaintenanceSummaries() []MaintenanceSummary {
	return SummarizeMaintenance(r.Maintenance)
}

// Analyzer runs the full pipeline with fixed parameters. It holds no state
// between runs and is safe for concurrent use.
type Analyzer struct {
	params Params
}

// NewAnalyzer validates params and returns an analyzer.
func NewAnalyzer(params Params) (*Analyzer, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis parameters: %w", err)
	}
	if params.Missing == nil {
		params.Missing = MissingAsZero
	}
	return &Analyzer{params: params}, nil
}

// Params returns the parameters the analyzer was built with.
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze computes ratios, smooths them, and runs both detectors over the
// same ratio series with one shared non-finite policy.
func (a *Analyzer) Analyze(ds *Dataset) (*Result, error) {
	if ds == nil {
		return nil, ErrNilDataset
	}
	start := time.Now()

	ratios := ComputeRatios(ds, a.params.Missing)

	smoother := RollingSmoother{
		Window:      a.params.WindowSize,
		Policy:      a.params.NonFinite,
		Parallelism: a.params.Parallelism,
	}
	smoothed := smoother.Smooth(ratios)

	flagger := NewMaintenanceFlagger(a.params.CleaningThreshold)
	detector := FaultDetector{
		Multiplier:  a.params.FaultMultiplier,
		Policy:      a.params.NonFinite,
		Parallelism: a.params.Parallelism,
	}

	return &Result{
		Params:      a.params,
		Entities:    ds.Entities(),
		Ratios:      ratios,
		Smoothed:    smoothed,
		Maintenance: flagger.Flag(smoothed),
		Faults:      detector.Detect(ratios),
		Duration:    time.Since(start),
	}, nil
}

// Analyze is a convenience wrapper around NewAnalyzer and Analyzer.Analyze.
func Analyze(ds *Dataset, params Params) (*Result, error) {
	a, err := NewAnalyzer(params)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ds)
}

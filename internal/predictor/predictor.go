// Package predictor estimates the expected output of a panel from weather
// and calendar features. The estimate is the denominator of the power
// ratio computed by the analysis core.
package predictor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/soltixdb/pvratio/internal/analytics"
	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
)

// DefaultL2 is the ridge penalty used when FitOptions.L2 is zero.
const DefaultL2 = 1e-6

var (
	ErrInsufficientSamples = errors.New("at least 2 samples are required to fit a model")
	ErrLengthMismatch      = errors.New("input lengths differ")
	ErrSingular            = errors.New("normal equations are not positive definite")
)

// FeatureNames lists the model inputs in Vector order.
var FeatureNames = []string{
	"ambient_temperature",
	"module_temperature",
	"irradiation",
	"hour",
	"month",
	"day_of_week",
}

// Features are the inputs of one prediction.
type Features struct {
	AmbientTemperature float64
	ModuleTemperature  float64
	Irradiation        float64
	Hour               int
	Month              int
	// DayOfWeek counts from Monday = 0.
	DayOfWeek int
}

// FeaturesAt builds Features for a timestamp and its weather reading.
func FeaturesAt(ts time.Time, ambient, module, irradiation float64) Features {
	return Features{
		AmbientTemperature: ambient,
		ModuleTemperature:  module,
		Irradiation:        irradiation,
		Hour:               ts.Hour(),
		Month:              int(ts.Month()),
		DayOfWeek:          (int(ts.Weekday()) + 6) % 7,
	}
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		f.AmbientTemperature,
		f.ModuleTemperature,
		f.Irradiation,
		float64(f.Hour),
		float64(f.Month),
		float64(f.DayOfWeek),
	}
}

// Predictor estimates expected output.
type Predictor interface {
	Predict(f Features) float64
}

// FitOptions tunes FitLinear.
type FitOptions struct {
	// L2 is the ridge penalty added to the diagonal of X'X.
	L2 float64
}

// ModelInfo describes a fitted model and its in-sample errors.
type ModelInfo struct {
	Features     []string           `json:"features"`
	Coefficients map[string]float64 `json:"coefficients"`
	Intercept    float64            `json:"intercept"`
	// Importance is the share of each feature's standardised coefficient.
	Importance map[string]float64 `json:"importance"`
	Samples    int                `json:"samples"`
	analytics.Errors
}

// LinearModel is an ordinary least squares fit with a small ridge term.
type LinearModel struct {
	coef      []float64
	intercept float64
	info      ModelInfo
}

// FitLinear solves the ridge normal equations on centred features with a
// Cholesky factorisation.
func FitLinear(samples []Features, targets []float64, opts FitOptions) (*LinearModel, error) {
	if len(samples) != len(targets) {
		return nil, fmt.Errorf("%w: %d samples, %d targets", ErrLengthMismatch, len(samples), len(targets))
	}
	n := len(samples)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientSamples, n)
	}
	l2 := opts.L2
	if l2 <= 0 {
		l2 = DefaultL2
	}
	p := len(FeatureNames)

	x := mat.NewDense(n, p, nil)
	for i, s := range samples {
		x.SetRow(i, s.Vector())
	}

	xMean := make([]float64, p)
	xStd := make([]float64, p)
	col := make([]float64, n)
	for j := range p {
		mat.Col(col, j, x)
		xMean[j], xStd[j] = stat.MeanStdDev(col, nil)
		for i := range n {
			x.Set(i, j, col[i]-xMean[j])
		}
	}
	yMean := stat.Mean(targets, nil)
	yc := make([]float64, n)
	for i, y := range targets {
		yc[i] = y - yMean
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	for j := range p {
		xtx.SetSym(j, j, xtx.At(j, j)+l2)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	m := &LinearModel{coef: make([]float64, p)}
	for j := range p {
		m.coef[j] = beta.AtVec(j)
	}
	m.intercept = yMean - floats.Dot(m.coef, xMean)

	fitted := make([]float64, n)
	for i, s := range samples {
		fitted[i] = m.Predict(s)
	}
	m.info = buildInfo(m, xStd, n, analytics.FitErrors(targets, fitted))

	return m, nil
}

func buildInfo(m *LinearModel, xStd []float64, n int, errs analytics.Errors) ModelInfo {
	info := ModelInfo{
		Features:     append([]string(nil), FeatureNames...),
		Coefficients: make(map[string]float64, len(FeatureNames)),
		Importance:   make(map[string]float64, len(FeatureNames)),
		Intercept:    m.intercept,
		Samples:      n,
		Errors:       errs,
	}

	weights := make([]float64, len(m.coef))
	for j, name := range FeatureNames {
		info.Coefficients[name] = m.coef[j]
		if !math.IsNaN(xStd[j]) {
			weights[j] = math.Abs(m.coef[j] * xStd[j])
		}
	}
	total := floats.Sum(weights)
	for j, name := range FeatureNames {
		if total > 0 {
			info.Importance[name] = weights[j] / total
		} else {
			info.Importance[name] = 0
		}
	}
	return info
}

// Predict returns the model estimate for f.
func (m *LinearModel) Predict(f Features) float64 {
	return m.intercept + floats.Dot(m.coef, f.Vector())
}

// Info returns the fitted coefficients and in-sample errors.
func (m *LinearModel) Info() ModelInfo {
	return m.info
}

// Constant predicts the same value for every input.
type Constant float64

// Predict returns c.
func (c Constant) Predict(Features) float64 {
	return float64(c)
}

// PredictAll applies p to every feature row.
func PredictAll(p Predictor, features []Features) []float64 {
	out := make([]float64, len(features))
	for i, f := range features {
		out[i] = p.Predict(f)
	}
	return out
}

// Annotate sets Predicted on each record from the matching feature row.
func Annotate(records []powerratio.Record, features []Features, p Predictor) error {
	if len(records) != len(features) {
		return fmt.Errorf("%w: %d records, %d feature rows", ErrLengthMismatch, len(records), len(features))
	}
	for i := range records {
		records[i].Predicted = p.Predict(features[i])
	}
	return nil
}

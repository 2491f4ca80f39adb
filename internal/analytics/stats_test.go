package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(0))
	assert.True(t, IsFinite(-12.5))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
	assert.False(t, IsFinite(math.Inf(-1)))
}

func TestMean(t *testing.T) {
	assert.True(t, math.IsNaN(Mean(nil)))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
}

func TestMeanStdDev(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		wantMean float64
		wantStd  float64
	}{
		{name: "single value has zero spread", values: []float64{7}, wantMean: 7, wantStd: 0},
		{name: "sample standard deviation", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, wantMean: 5, wantStd: math.Sqrt(32.0 / 7.0)},
		{name: "constant series", values: []float64{3, 3, 3}, wantMean: 3, wantStd: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, std := MeanStdDev(tt.values)
			assert.InDelta(t, tt.wantMean, mean, 1e-12)
			assert.InDelta(t, tt.wantStd, std, 1e-12)
		})
	}
}

func TestMeanStdDev_Empty(t *testing.T) {
	mean, std := MeanStdDev(nil)
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))
}

func TestFitErrors(t *testing.T) {
	actual := []float64{1, 2, 3, 4}

	perfect := FitErrors(actual, actual)
	assert.InDelta(t, 0, perfect.MAE, 1e-12)
	assert.InDelta(t, 0, perfect.RMSE, 1e-12)
	assert.InDelta(t, 1, perfect.R2, 1e-12)

	off := FitErrors(actual, []float64{2, 3, 4, 5})
	assert.InDelta(t, 1, off.MAE, 1e-12)
	assert.InDelta(t, 1, off.RMSE, 1e-12)

	assert.Equal(t, Errors{}, FitErrors(actual, actual[:2]))
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseHorizons(t *testing.T) {
	b, err := NewBase(120, 480, "gsp", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 24, b.HistoryLen)
	assert.Equal(t, 96, b.ForecastLen)
	assert.Equal(t, 4, b.HistoryLen30)
	assert.Equal(t, 16, b.ForecastLen30)
	assert.Equal(t, 4+16+1, b.GSPLen())
	assert.Equal(t, 16, b.OutputSteps())
	assert.Equal(t, 16, b.NumOutputFeatures())
	assert.False(t, b.UseQuantileRegression())
}

func TestShortHorizonStepCounts(t *testing.T) {
	b, err := NewBase(60, 30, "gsp", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.HistoryLen30)
	assert.Equal(t, 1, b.ForecastLen30)
	// The sun encoder consumes azimuth and elevation over this window,
	// so its input width is 2 * 4 = 8.
	assert.Equal(t, 4, b.GSPLen())
}

func TestNewBaseRejectsBadHorizons(t *testing.T) {
	tests := []struct {
		name              string
		history, forecast int
	}{
		{"history not divisible by 30", 45, 480},
		{"forecast not divisible by 30", 120, 475},
		{"forecast not divisible by 5", 120, 481},
		{"negative history", -60, 480},
		{"negative forecast", 120, -30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBase(tt.history, tt.forecast, "gsp", nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewBaseRejectsUnknownTarget(t *testing.T) {
	_, err := NewBase(60, 120, "wind", nil, nil)
	assert.Error(t, err)
}

func TestNewBaseRejectsBadQuantiles(t *testing.T) {
	_, err := NewBase(60, 120, "gsp", []float64{0.9, 0.1}, nil)
	assert.Error(t, err)
}

func TestPVTargetUsesFiveMinuteSteps(t *testing.T) {
	b, err := NewBase(60, 120, "pv", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 24, b.OutputSteps())
}

func TestQuantileOutputWidth(t *testing.T) {
	b, err := NewBase(60, 120, "gsp", []float64{0.1, 0.5, 0.9}, nil)
	require.NoError(t, err)
	assert.True(t, b.UseQuantileRegression())
	assert.Equal(t, 4*3, b.NumOutputFeatures())
	assert.Equal(t, "quantile_loss", b.PrimaryLossName())
}

func TestQuantileForecastRoundTrip(t *testing.T) {
	b, err := NewBase(30, 60, "gsp", []float64{0.1, 0.5, 0.9}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, b.OutputSteps())

	// Quantile-minor: all quantiles of step 0 first.
	row := []float64{1, 2, 3, 4, 5, 6}
	out, err := b.QuantileForecast([][]float64{row})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, out[0])

	flat := make([]float64, 0, 6)
	for _, step := range out[0] {
		flat = append(flat, step...)
	}
	assert.Equal(t, row, flat)

	_, err = b.QuantileForecast([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestQuantileForecastRequiresQuantileModel(t *testing.T) {
	b, err := NewBase(30, 60, "gsp", nil, nil)
	require.NoError(t, err)
	_, err = b.QuantileForecast(nil)
	assert.Error(t, err)
}

func TestTargetExtractsFinalForecastSteps(t *testing.T) {
	b, err := NewBase(60, 60, "gsp", nil, nil)
	require.NoError(t, err)
	// Window is 2 + 2 + 1 = 5 steps; the label is the final 2.
	series := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	y, err := b.Target(series)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.5}, y)

	_, err = b.Target([]float64{0.1, 0.2})
	assert.Error(t, err)
}

func TestMetricsAccumulate(t *testing.T) {
	b, err := NewBase(30, 30, "gsp", nil, nil)
	require.NoError(t, err)

	b.LogMetric("MAE/train", 0.4)
	b.LogMetric("MAE/train", 0.2)
	m := b.Metrics()
	assert.InDelta(t, 0.3, m["MAE/train"], 1e-12)

	b.ResetMetrics()
	assert.Empty(t, b.Metrics())
}

func TestMSEMetricUsesMedianQuantile(t *testing.T) {
	b, err := NewBase(30, 30, "gsp", []float64{0.1, 0.5, 0.9}, nil)
	require.NoError(t, err)
	// One step, three quantiles; the median prediction is 0.6.
	got := b.MSEMetric([]float64{0.2, 0.6, 0.9}, []float64{0.5})
	assert.InDelta(t, 0.01, got, 1e-12)
}

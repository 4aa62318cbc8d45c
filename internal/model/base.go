package model

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"pvfusion/internal/loss"
)

// Cadences of the native data streams, in minutes.
const (
	SatelliteCadenceMinutes = 5
	GSPCadenceMinutes       = 30
)

// Base carries the temporal arithmetic, loss configuration, and metric
// accumulation shared by every concrete architecture.
type Base struct {
	HistoryMinutes  int
	ForecastMinutes int

	// Horizon lengths in 5-minute (native satellite cadence) steps.
	HistoryLen  int
	ForecastLen int

	// Horizon lengths resampled to 30-minute (GSP cadence) steps.
	HistoryLen30  int
	ForecastLen30 int

	targetKey string

	quantile *loss.Quantile // nil for point forecasts
	l1       loss.L1Loss
	mse      loss.MSE

	logger  *slog.Logger
	metrics map[string][]float64
}

// NewBase validates the horizons and quantile list, and derives the step
// counts. Horizons that do not divide evenly into both cadences are rejected
// outright rather than silently truncated.
func NewBase(historyMinutes, forecastMinutes int, targetKey string, quantiles []float64, logger *slog.Logger) (*Base, error) {
	if historyMinutes < 0 || forecastMinutes < 0 {
		return nil, fmt.Errorf("model: negative horizon (history %d, forecast %d minutes)", historyMinutes, forecastMinutes)
	}
	for _, cadence := range []int{SatelliteCadenceMinutes, GSPCadenceMinutes} {
		if historyMinutes%cadence != 0 {
			return nil, fmt.Errorf("model: history %d minutes not divisible by %d-minute cadence", historyMinutes, cadence)
		}
		if forecastMinutes%cadence != 0 {
			return nil, fmt.Errorf("model: forecast %d minutes not divisible by %d-minute cadence", forecastMinutes, cadence)
		}
	}
	if targetKey != "gsp" && targetKey != "pv" {
		return nil, fmt.Errorf("model: unknown target key %q", targetKey)
	}

	b := &Base{
		HistoryMinutes:  historyMinutes,
		ForecastMinutes: forecastMinutes,
		HistoryLen:      historyMinutes / SatelliteCadenceMinutes,
		ForecastLen:     forecastMinutes / SatelliteCadenceMinutes,
		HistoryLen30:    historyMinutes / GSPCadenceMinutes,
		ForecastLen30:   forecastMinutes / GSPCadenceMinutes,
		targetKey:       targetKey,
		logger:          logger,
		metrics:         make(map[string][]float64),
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	if len(quantiles) > 0 {
		q, err := loss.NewQuantile(quantiles)
		if err != nil {
			return nil, err
		}
		b.quantile = q
	}
	return b, nil
}

// TargetKey returns the batch field being predicted.
func (b *Base) TargetKey() string { return b.targetKey }

// UseQuantileRegression reports whether the model predicts quantiles.
func (b *Base) UseQuantileRegression() bool { return b.quantile != nil }

// OutputQuantiles returns the configured quantile list, or nil.
func (b *Base) OutputQuantiles() []float64 {
	if b.quantile == nil {
		return nil
	}
	return b.quantile.Quantiles()
}

// GSPLen is the truncated GSP window length: history + forecast + 1 steps
// at the 30-minute cadence, inclusive of "now".
func (b *Base) GSPLen() int {
	return b.HistoryLen30 + b.ForecastLen30 + 1
}

// OutputSteps is the number of forecast steps of the target series.
func (b *Base) OutputSteps() int {
	if b.targetKey == "pv" {
		return b.ForecastLen
	}
	return b.ForecastLen30
}

// NumOutputFeatures is the output network's flat width: forecast steps for
// point mode, steps * quantiles for quantile mode.
func (b *Base) NumOutputFeatures() int {
	if b.quantile != nil {
		return b.OutputSteps() * b.quantile.NumQuantiles()
	}
	return b.OutputSteps()
}

// PrimaryLoss computes the optimization loss for one example: MAE for point
// forecasts, pinball loss for quantile forecasts. yHat is a flat output row.
func (b *Base) PrimaryLoss(yHat, y []float64) float64 {
	if b.quantile != nil {
		return b.quantile.Forward(yHat, y)
	}
	return b.l1.Forward(yHat, y)
}

// PrimaryLossName names the loss reported by PrimaryLoss.
func (b *Base) PrimaryLossName() string {
	if b.quantile != nil {
		return "quantile_loss"
	}
	return "MAE"
}

// PrimaryGrad computes the loss gradient w.r.t. the flat output row.
func (b *Base) PrimaryGrad(yHat, y, grad []float64) {
	if b.quantile != nil {
		b.quantile.BackwardInPlace(yHat, y, grad)
		return
	}
	b.l1.BackwardInPlace(yHat, y, grad)
}

// QuantileForecast reshapes flat output rows into [batch][steps][quantiles].
// The flat layout is quantile-minor: all quantiles of step 0, then step 1.
func (b *Base) QuantileForecast(rows [][]float64) ([][][]float64, error) {
	if b.quantile == nil {
		return nil, fmt.Errorf("model: not a quantile model")
	}
	steps := b.OutputSteps()
	nq := b.quantile.NumQuantiles()
	out := make([][][]float64, len(rows))
	for i, row := range rows {
		if len(row) != steps*nq {
			return nil, fmt.Errorf("model: output row %d has width %d, want %d", i, len(row), steps*nq)
		}
		sample := make([][]float64, steps)
		for t := 0; t < steps; t++ {
			q := make([]float64, nq)
			copy(q, row[t*nq:(t+1)*nq])
			sample[t] = q
		}
		out[i] = sample
	}
	return out, nil
}

// Target extracts one example's label: the final forecast steps of the
// truncated target window.
func (b *Base) Target(series []float64) ([]float64, error) {
	var window, steps int
	if b.targetKey == "pv" {
		window = b.HistoryLen + b.ForecastLen + 1
		steps = b.ForecastLen
	} else {
		window = b.GSPLen()
		steps = b.ForecastLen30
	}
	if len(series) < window {
		return nil, fmt.Errorf("model: target series has %d steps, want at least %d", len(series), window)
	}
	y := make([]float64, steps)
	copy(y, series[window-steps:window])
	return y, nil
}

// LogMetric accumulates a named per-step metric and logs it at debug level.
func (b *Base) LogMetric(name string, value float64) {
	b.metrics[name] = append(b.metrics[name], value)
	b.logger.Debug("metric", "name", name, "value", value)
}

// Metrics returns the mean of each accumulated metric since the last reset.
func (b *Base) Metrics() map[string]float64 {
	out := make(map[string]float64, len(b.metrics))
	for name, values := range b.metrics {
		out[name] = stat.Mean(values, nil)
	}
	return out
}

// ResetMetrics clears the accumulated metrics, typically at epoch end.
func (b *Base) ResetMetrics() {
	b.metrics = make(map[string][]float64)
}

// MSEMetric computes the secondary MSE metric for one example.
func (b *Base) MSEMetric(yHat, y []float64) float64 {
	if b.quantile != nil {
		// Compare the median-most quantile against the target.
		nq := b.quantile.NumQuantiles()
		mid := nq / 2
		steps := len(y)
		med := make([]float64, steps)
		for t := 0; t < steps; t++ {
			med[t] = yHat[t*nq+mid]
		}
		return b.mse.Forward(med, y)
	}
	return b.mse.Forward(yHat, y)
}

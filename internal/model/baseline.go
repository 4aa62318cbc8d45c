package model

import (
	"fmt"
	"log/slog"
	"math"

	"pvfusion/internal/batch"
)

// SmartPersistence is the reference baseline: it holds the last observed
// target value and scales it with a clear-sky proxy derived from solar
// elevation, so the persisted value follows the expected diurnal shape.
// It has no trainable parameters.
type SmartPersistence struct {
	*Base
}

// NewSmartPersistence builds the baseline for the given horizons and target.
// It always produces point forecasts.
func NewSmartPersistence(historyMinutes, forecastMinutes int, targetKey string, logger *slog.Logger) (*SmartPersistence, error) {
	base, err := NewBase(historyMinutes, forecastMinutes, targetKey, nil, logger)
	if err != nil {
		return nil, err
	}
	return &SmartPersistence{Base: base}, nil
}

// clearSky is the proxy irradiance for a solar elevation in degrees.
func clearSky(elevationDeg float64) float64 {
	return math.Max(math.Sin(elevationDeg*math.Pi/180), 0)
}

// Forward produces one forecast row per example. When the sun is at or
// below the horizon at forecast time the prediction is zero; a zero
// clear-sky reference at "now" likewise yields an all-zero forecast.
func (s *SmartPersistence) Forward(b *batch.Batch) ([][]float64, error) {
	if err := b.Validate(s.GSPLen()); err != nil {
		return nil, err
	}
	series, err := b.Series(s.TargetKey())
	if err != nil {
		return nil, err
	}
	if len(b.SolarElevation) != b.Size() {
		return nil, fmt.Errorf("model: batch has %d solar elevation rows, want %d", len(b.SolarElevation), b.Size())
	}

	steps := s.OutputSteps()
	stepMinutes := GSPCadenceMinutes
	nowIdx := s.HistoryLen30
	if s.TargetKey() == batch.TargetPV {
		stepMinutes = SatelliteCadenceMinutes
		nowIdx = s.HistoryLen
	}

	rows := make([][]float64, b.Size())
	for i := range rows {
		row := make([]float64, steps)
		rows[i] = row

		last := series[i][nowIdx]
		ref := clearSky(b.SolarElevation[i][s.HistoryLen30])
		if ref <= 0 {
			continue
		}
		for k := 0; k < steps; k++ {
			// Angles are sampled at the 30-minute cadence; take the
			// latest angle at or before the forecast time.
			elevIdx := s.HistoryLen30 + (k+1)*stepMinutes/GSPCadenceMinutes
			if elevIdx >= s.GSPLen() {
				elevIdx = s.GSPLen() - 1
			}
			row[k] = last * clearSky(b.SolarElevation[i][elevIdx]) / ref
		}
	}
	return rows, nil
}

// ValidationStep scores the baseline on a batch without any state change.
func (s *SmartPersistence) ValidationStep(b *batch.Batch) (map[string]float64, error) {
	rows, err := s.Forward(b)
	if err != nil {
		return nil, err
	}
	series, err := b.Series(s.TargetKey())
	if err != nil {
		return nil, err
	}
	var maeSum, mseSum float64
	for i, row := range rows {
		y, err := s.Target(series[i])
		if err != nil {
			return nil, err
		}
		maeSum += s.PrimaryLoss(row, y)
		mseSum += s.MSEMetric(row, y)
	}
	n := float64(len(rows))
	losses := map[string]float64{"MAE": maeSum / n, "MSE": mseSum / n}
	for name, v := range losses {
		s.LogMetric(name+"/val", v)
	}
	return losses, nil
}

package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvfusion/internal/batch"
)

// baselineBatch builds a single-example batch with controlled elevations.
// Horizons of 60/60 minutes give a 5-step window: indexes 0..1 history,
// 2 "now", 3..4 forecast.
func baselineBatch(gsp, elevation []float64) *batch.Batch {
	az := make([]float64, len(elevation))
	return &batch.Batch{
		GSP:            [][]float64{gsp},
		SolarAzimuth:   [][]float64{az},
		SolarElevation: [][]float64{elevation},
	}
}

func TestSmartPersistenceScalesWithClearSky(t *testing.T) {
	s, err := NewSmartPersistence(60, 60, "gsp", nil)
	require.NoError(t, err)

	gsp := []float64{0.1, 0.2, 0.5, 0, 0}
	elev := []float64{10, 20, 30, 40, 50}
	rows, err := s.Forward(baselineBatch(gsp, elev))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)

	ref := math.Sin(30 * math.Pi / 180)
	assert.InDelta(t, 0.5*math.Sin(40*math.Pi/180)/ref, rows[0][0], 1e-12)
	assert.InDelta(t, 0.5*math.Sin(50*math.Pi/180)/ref, rows[0][1], 1e-12)
}

func TestSmartPersistenceZeroAtNight(t *testing.T) {
	s, err := NewSmartPersistence(60, 60, "gsp", nil)
	require.NoError(t, err)

	t.Run("sun below horizon now", func(t *testing.T) {
		gsp := []float64{0.1, 0.2, 0.5, 0, 0}
		elev := []float64{-5, -2, 0, 10, 20}
		rows, err := s.Forward(baselineBatch(gsp, elev))
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, rows[0])
	})

	t.Run("sun sets during forecast", func(t *testing.T) {
		gsp := []float64{0.1, 0.2, 0.5, 0, 0}
		elev := []float64{20, 15, 10, 5, -3}
		rows, err := s.Forward(baselineBatch(gsp, elev))
		require.NoError(t, err)
		assert.Greater(t, rows[0][0], 0.0)
		assert.Equal(t, 0.0, rows[0][1])
	})
}

func TestSmartPersistenceValidation(t *testing.T) {
	s, err := NewSmartPersistence(60, 60, "gsp", nil)
	require.NoError(t, err)

	losses, err := s.ValidationStep(baselineBatch(
		[]float64{0.1, 0.2, 0.5, 0.4, 0.3},
		[]float64{10, 20, 30, 25, 15},
	))
	require.NoError(t, err)
	assert.Contains(t, losses, "MAE")
	assert.Contains(t, losses, "MSE")
	assert.GreaterOrEqual(t, losses["MAE"], 0.0)
}

func TestSmartPersistenceMissingSolarElevation(t *testing.T) {
	s, err := NewSmartPersistence(60, 60, "gsp", nil)
	require.NoError(t, err)

	b := baselineBatch(
		[]float64{0.1, 0.2, 0.5, 0.4, 0.3},
		[]float64{10, 20, 30, 25, 15},
	)
	b.SolarElevation = nil
	_, err = s.Forward(b)
	assert.ErrorContains(t, err, "solar elevation")
}

func TestSmartPersistenceRejectsShortWindow(t *testing.T) {
	s, err := NewSmartPersistence(60, 60, "gsp", nil)
	require.NoError(t, err)

	_, err = s.Forward(baselineBatch([]float64{0.1, 0.2}, []float64{10, 20}))
	assert.Error(t, err)
}

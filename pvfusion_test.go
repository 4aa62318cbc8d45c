package pvfusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pvfusion/internal/batch"
	"pvfusion/internal/encoder"
)

func TestFacadeForecast(t *testing.T) {
	cfg := Config{
		HistoryMinutes:  60,
		ForecastMinutes: 120,
		TargetKey:       TargetGSP,
		OutputQuantiles: []float64{0.1, 0.5, 0.9},

		IncludeSat: true,
		Sat: ImageModality{ImageConfig: encoder.ImageConfig{
			SequenceLength:  3,
			ImageSizePixels: 8,
			InChannels:      1,
			OutFeatures:     8,
			ConvChannels:    2,
			HiddenFeatures:  8,
		}},

		IncludeGSPHistory: true,
		IncludeSun:        true,
	}

	m, err := NewMultimodal(cfg, nil)
	require.NoError(t, err)

	b := batch.NewFake(batch.FakeSpec{
		BatchSize:   2,
		GSPSteps:    7,
		SatSteps:    3,
		SatChannels: 1,
		SatSize:     8,
	}, 11)

	rows, err := m.Forward(b)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 4*3)

	forecast, err := m.QuantileForecast(rows)
	require.NoError(t, err)
	assert.Len(t, forecast[0], 4)
}

func TestFacadeBaseline(t *testing.T) {
	s, err := NewSmartPersistence(60, 120, TargetGSP, nil)
	require.NoError(t, err)

	b := batch.NewFake(batch.FakeSpec{BatchSize: 1, GSPSteps: 7}, 4)
	rows, err := s.Forward(b)
	require.NoError(t, err)
	assert.Len(t, rows[0], 4)
}

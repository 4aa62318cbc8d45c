package encoder

import (
	"fmt"

	"pvfusion/internal/activations"
	"pvfusion/internal/layer"
)

// SunOutFeatures is the fixed width of the sun-angle feature vector.
const SunOutFeatures = 16

// Sun encodes solar azimuth and elevation series through a single linear
// layer. The input width is 2 * steps and is fixed at construction; a series
// of any other length invalidates the layer's weight matrix, so Encode
// rejects it.
type Sun struct {
	steps int
	fc    *layer.Dense
}

// NewSun creates a sun-angle encoder for azimuth/elevation series of exactly
// steps values each (history + forecast + 1 at the 30-minute cadence).
func NewSun(steps int, rng *layer.RNG) (*Sun, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("encoder: sun encoder needs positive step count, got %d", steps)
	}
	return &Sun{
		steps: steps,
		fc:    layer.NewDense(2*steps, SunOutFeatures, activations.Linear{}, rng),
	}, nil
}

// Encode concatenates azimuth and elevation and applies the dense layer.
func (e *Sun) Encode(azimuth, elevation []float64) ([]float64, error) {
	if len(azimuth) != e.steps || len(elevation) != e.steps {
		return nil, fmt.Errorf("encoder: sun series have %d and %d steps, want %d each",
			len(azimuth), len(elevation), e.steps)
	}
	in := make([]float64, 0, 2*e.steps)
	in = append(in, azimuth...)
	in = append(in, elevation...)
	return e.fc.Forward(in), nil
}

// Backward propagates a feature gradient; the input gradient is discarded
// since sun angles are raw batch data.
func (e *Sun) Backward(grad []float64) []float64 {
	return e.fc.Backward(grad)
}

// OutFeatures returns the encoder's feature vector width.
func (e *Sun) OutFeatures() int { return SunOutFeatures }

// Steps returns the declared per-series step count.
func (e *Sun) Steps() int { return e.steps }

// Params returns the dense layer parameters.
func (e *Sun) Params() []float64 { return e.fc.Params() }

// SetParams updates the dense layer parameters.
func (e *Sun) SetParams(params []float64) { e.fc.SetParams(params) }

// Gradients returns the dense layer gradients.
func (e *Sun) Gradients() []float64 { return e.fc.Gradients() }

// ResetGradients zeros the accumulated gradients.
func (e *Sun) ResetGradients() { e.fc.ResetGradients() }

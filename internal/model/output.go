package model

import (
	"fmt"

	"pvfusion/internal/activations"
	"pvfusion/internal/layer"
)

// OutputNetwork maps the fused feature vector to the flat forecast row.
// Two dense layers; the head is linear so quantile outputs are unbounded.
type OutputNetwork struct {
	inFeatures  int
	outFeatures int
	layers      []layer.Layer
}

// NewOutputNetwork creates the fusion output network. The declared input
// width must equal the fusion assembler's total width; callers verify that
// at model construction.
func NewOutputNetwork(inFeatures, hidden, outFeatures int, rng *layer.RNG) (*OutputNetwork, error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, fmt.Errorf("model: output network needs positive widths, got in=%d out=%d", inFeatures, outFeatures)
	}
	if hidden <= 0 {
		hidden = 128
	}
	return &OutputNetwork{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		layers: []layer.Layer{
			layer.NewDense(inFeatures, hidden, activations.NewLeakyReLU(0.02), rng),
			layer.NewDense(hidden, outFeatures, activations.Linear{}, rng),
		},
	}, nil
}

// InFeatures returns the expected fused vector width.
func (o *OutputNetwork) InFeatures() int { return o.inFeatures }

// OutFeatures returns the flat forecast row width.
func (o *OutputNetwork) OutFeatures() int { return o.outFeatures }

// Forward maps one fused vector to one flat forecast row.
func (o *OutputNetwork) Forward(fused []float64) []float64 {
	curr := fused
	for _, l := range o.layers {
		curr = l.Forward(curr)
	}
	return curr
}

// Backward propagates a forecast-row gradient back to the fused vector.
func (o *OutputNetwork) Backward(grad []float64) []float64 {
	curr := grad
	for i := len(o.layers) - 1; i >= 0; i-- {
		curr = o.layers[i].Backward(curr)
	}
	return curr
}

// Params returns all parameters flattened.
func (o *OutputNetwork) Params() []float64 {
	var params []float64
	for _, l := range o.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// SetParams updates all parameters from a flattened slice.
func (o *OutputNetwork) SetParams(params []float64) {
	offset := 0
	for _, l := range o.layers {
		n := len(l.Params())
		l.SetParams(params[offset : offset+n])
		offset += n
	}
}

// Gradients returns all gradients flattened.
func (o *OutputNetwork) Gradients() []float64 {
	var gradients []float64
	for _, l := range o.layers {
		gradients = append(gradients, l.Gradients()...)
	}
	return gradients
}

// ResetGradients zeros the accumulated gradients.
func (o *OutputNetwork) ResetGradients() {
	for _, l := range o.layers {
		l.ResetGradients()
	}
}

package encoder

import (
	"fmt"

	"pvfusion/internal/activations"
	"pvfusion/internal/layer"
)

// Site encodes a site-level yield history series into a feature vector
// through a small dense stack.
type Site struct {
	seqLen      int
	outFeatures int
	stack
}

// NewSite creates a site-history encoder for series of exactly seqLen steps.
func NewSite(seqLen, hidden, outFeatures int, rng *layer.RNG) (*Site, error) {
	if seqLen <= 0 || outFeatures <= 0 {
		return nil, fmt.Errorf("encoder: site encoder needs positive sequence length and out_features, got %d and %d", seqLen, outFeatures)
	}
	if hidden == 0 {
		hidden = 64
	}
	fc1 := layer.NewDense(seqLen, hidden, activations.NewLeakyReLU(0.02), rng)
	fc2 := layer.NewDense(hidden, outFeatures, activations.NewLeakyReLU(0.02), rng)
	return &Site{
		seqLen:      seqLen,
		outFeatures: outFeatures,
		stack:       stack{layers: []layer.Layer{fc1, fc2}},
	}, nil
}

// Encode maps one history series to a feature vector.
func (e *Site) Encode(series []float64) ([]float64, error) {
	if len(series) != e.seqLen {
		return nil, fmt.Errorf("encoder: site series has %d steps, want %d", len(series), e.seqLen)
	}
	return e.forward(series), nil
}

// Backward propagates a feature-vector gradient back to the series input.
func (e *Site) Backward(grad []float64) []float64 {
	return e.backward(grad)
}

// OutFeatures returns the encoder's feature vector width.
func (e *Site) OutFeatures() int { return e.outFeatures }

// SequenceLength returns the declared series length.
func (e *Site) SequenceLength() int { return e.seqLen }

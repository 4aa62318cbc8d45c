// Package encoder provides the per-modality encoders that map raw modality
// tensors to fixed-length feature vectors.
package encoder

import (
	"fmt"
	"sort"

	"pvfusion/internal/layer"
	"pvfusion/internal/tensor"
)

// Parametric is the shared parameter surface of every encoder. The fusion
// and model layers depend only on this and on OutFeatures, never on encoder
// internals.
type Parametric interface {
	OutFeatures() int
	Params() []float64
	SetParams(params []float64)
	Gradients() []float64
	ResetGradients()
}

// Image encodes an image-like modality sample of declared shape
// [sequence, channels, size, size] into a feature vector.
type Image interface {
	Parametric

	// Encode maps one sample to a feature vector. The sample shape must
	// match the declared contract exactly.
	Encode(sample *tensor.Tensor) ([]float64, error)

	// Backward takes the gradient w.r.t. the last encoded feature vector
	// and returns the gradient w.r.t. the flattened input sample.
	Backward(grad []float64) []float64

	SequenceLength() int
	ImageSizePixels() int
	InChannels() int
}

// ImageConfig declares an image encoder's input contract and output width.
type ImageConfig struct {
	SequenceLength  int `yaml:"sequence_length"`
	ImageSizePixels int `yaml:"image_size_pixels"`
	InChannels      int `yaml:"in_channels"`
	OutFeatures     int `yaml:"out_features"`

	// Hidden sizes; builders fall back to defaults when zero.
	ConvChannels   int `yaml:"conv_channels"`
	HiddenFeatures int `yaml:"hidden_features"`
}

func (c ImageConfig) validate() error {
	if c.SequenceLength <= 0 || c.ImageSizePixels <= 0 || c.InChannels <= 0 || c.OutFeatures <= 0 {
		return fmt.Errorf("encoder: image config must have positive sequence, size, channels and out_features, got %+v", c)
	}
	return nil
}

// ImageBuilder constructs an image encoder from its declared configuration.
type ImageBuilder func(cfg ImageConfig, rng *layer.RNG) (Image, error)

var imageBuilders = map[string]ImageBuilder{}

// RegisterImage adds a named image encoder constructor to the registry.
// Tags are resolved once at model construction.
func RegisterImage(tag string, b ImageBuilder) {
	imageBuilders[tag] = b
}

// BuildImage resolves a registry tag to a constructed encoder. Unknown tags
// are a configuration error.
func BuildImage(tag string, cfg ImageConfig, rng *layer.RNG) (Image, error) {
	b, ok := imageBuilders[tag]
	if !ok {
		return nil, fmt.Errorf("encoder: unknown image encoder tag %q (registered: %v)", tag, imageTags())
	}
	return b(cfg, rng)
}

func imageTags() []string {
	tags := make([]string, 0, len(imageBuilders))
	for tag := range imageBuilders {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// stack concatenates the parameter surface of a fixed sequence of layers.
type stack struct {
	layers []layer.Layer
}

func (s *stack) Params() []float64 {
	var params []float64
	for _, l := range s.layers {
		params = append(params, l.Params()...)
	}
	return params
}

func (s *stack) SetParams(params []float64) {
	offset := 0
	for _, l := range s.layers {
		n := len(l.Params())
		l.SetParams(params[offset : offset+n])
		offset += n
	}
}

func (s *stack) Gradients() []float64 {
	var gradients []float64
	for _, l := range s.layers {
		gradients = append(gradients, l.Gradients()...)
	}
	return gradients
}

func (s *stack) ResetGradients() {
	for _, l := range s.layers {
		l.ResetGradients()
	}
}

func (s *stack) forward(x []float64) []float64 {
	curr := x
	for _, l := range s.layers {
		curr = l.Forward(curr)
	}
	return curr
}

func (s *stack) backward(grad []float64) []float64 {
	curr := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		curr = s.layers[i].Backward(curr)
	}
	return curr
}

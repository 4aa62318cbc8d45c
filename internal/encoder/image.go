package encoder

import (
	"fmt"

	"pvfusion/internal/activations"
	"pvfusion/internal/layer"
	"pvfusion/internal/tensor"
)

func init() {
	RegisterImage("conv", func(cfg ImageConfig, rng *layer.RNG) (Image, error) {
		return NewConvImage(cfg, rng)
	})
}

// ConvImage is the default image encoder: two strided convolutions over the
// stacked channel planes followed by a dense head. The time and channel axes
// are swapped and folded together, so a [T, C, H, W] sample is convolved as
// C*T channel-major planes.
type ConvImage struct {
	cfg ImageConfig
	stack
}

// NewConvImage creates the default convolutional image encoder.
func NewConvImage(cfg ImageConfig, rng *layer.RNG) (*ConvImage, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	convChannels := cfg.ConvChannels
	if convChannels == 0 {
		convChannels = 32
	}
	hidden := cfg.HiddenFeatures
	if hidden == 0 {
		hidden = 128
	}

	size := cfg.ImageSizePixels
	planes := cfg.SequenceLength * cfg.InChannels

	conv1 := layer.NewConv2D(planes, convChannels, 3, 2, 1, size, size, activations.NewLeakyReLU(0.02), rng)
	s1 := (size+2-3)/2 + 1
	conv2 := layer.NewConv2D(convChannels, 2*convChannels, 3, 2, 1, s1, s1, activations.NewLeakyReLU(0.02), rng)
	s2 := (s1+2-3)/2 + 1

	flat := 2 * convChannels * s2 * s2
	fc1 := layer.NewDense(flat, hidden, activations.NewLeakyReLU(0.02), rng)
	fc2 := layer.NewDense(hidden, cfg.OutFeatures, activations.NewLeakyReLU(0.02), rng)

	return &ConvImage{
		cfg:   cfg,
		stack: stack{layers: []layer.Layer{conv1, conv2, fc1, fc2}},
	}, nil
}

// Encode maps a [sequence, channels, size, size] sample to a feature vector.
func (e *ConvImage) Encode(sample *tensor.Tensor) ([]float64, error) {
	if err := e.checkShape(sample); err != nil {
		return nil, err
	}
	swapped, err := sample.SwapTimeChannel()
	if err != nil {
		return nil, err
	}
	return e.forward(swapped.Data()), nil
}

// Backward propagates a feature-vector gradient back to the flattened input,
// in the sample's original [T, C, H, W] layout.
func (e *ConvImage) Backward(grad []float64) []float64 {
	inGrad := e.backward(grad)
	size := e.cfg.ImageSizePixels
	g, err := tensor.New(inGrad, e.cfg.InChannels, e.cfg.SequenceLength, size, size)
	if err != nil {
		panic(err)
	}
	swapped, err := g.SwapTimeChannel()
	if err != nil {
		panic(err)
	}
	return swapped.Data()
}

func (e *ConvImage) checkShape(sample *tensor.Tensor) error {
	want := []int{e.cfg.SequenceLength, e.cfg.InChannels, e.cfg.ImageSizePixels, e.cfg.ImageSizePixels}
	got := sample.Shape()
	if len(got) != len(want) {
		return fmt.Errorf("encoder: image sample rank %d, want 4 [T C H W]", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("encoder: image sample shape %v does not match declared %v", got, want)
		}
	}
	return nil
}

// OutFeatures returns the encoder's feature vector width.
func (e *ConvImage) OutFeatures() int { return e.cfg.OutFeatures }

// SequenceLength returns the declared time-axis length.
func (e *ConvImage) SequenceLength() int { return e.cfg.SequenceLength }

// ImageSizePixels returns the declared (square) spatial size.
func (e *ConvImage) ImageSizePixels() int { return e.cfg.ImageSizePixels }

// InChannels returns the declared channel count.
func (e *ConvImage) InChannels() int { return e.cfg.InChannels }

// Package layer provides neural network layer implementations.
package layer

import (
	"math"

	"pvfusion/internal/activations"
)

// Layer is a neural network layer operating on per-sample vectors.
type Layer interface {
	Forward(x []float64) []float64
	Backward(grad []float64) []float64
	Params() []float64
	SetParams([]float64)
	Gradients() []float64
	ResetGradients()
}

// Dense is a fully connected layer.
// Weights are stored row-major and contiguous, and all working buffers are
// pre-allocated so the forward/backward hot loops do not allocate.
type Dense struct {
	// weight for output i, input j is at weights[i*in + j]
	weights []float64
	biases  []float64
	act     activations.Activation
	outSize int
	inSize  int

	// Reusable buffers for gradient computation
	inputBuf  []float64
	outputBuf []float64
	preActBuf []float64
	gradWBuf  []float64
	gradBBuf  []float64
	gradInBuf []float64
	dzBuf     []float64
}

// NewDense creates a new dense layer with Xavier-initialized weights.
func NewDense(in, out int, act activations.Activation, rng *RNG) *Dense {
	weights := make([]float64, out*in)
	biases := make([]float64, out)

	scale := math.Sqrt(2.0 / (float64(in) + float64(out)))
	for i := range weights {
		weights[i] = rng.RandFloat()*2*scale - scale
	}
	for i := range biases {
		biases[i] = rng.RandFloat()*0.2 - 0.1
	}

	return &Dense{
		weights:   weights,
		biases:    biases,
		act:       act,
		outSize:   out,
		inSize:    in,
		inputBuf:  make([]float64, in),
		outputBuf: make([]float64, out),
		preActBuf: make([]float64, out),
		gradWBuf:  make([]float64, out*in),
		gradBBuf:  make([]float64, out),
		gradInBuf: make([]float64, in),
		dzBuf:     make([]float64, out),
	}
}

// Forward computes act(Wx + b).
func (d *Dense) Forward(x []float64) []float64 {
	if len(x) != d.inSize {
		panic("layer: Dense input length does not match inSize")
	}
	copy(d.inputBuf, x)

	for o := 0; o < d.outSize; o++ {
		sum := d.biases[o]
		wBase := o * d.inSize
		for i := 0; i < d.inSize; i++ {
			sum += d.weights[wBase+i] * d.inputBuf[i]
		}
		d.preActBuf[o] = sum
		d.outputBuf[o] = d.act.Activate(sum)
	}
	return d.outputBuf[:d.outSize]
}

// Backward accumulates weight/bias gradients and returns the input gradient.
// Gradients accumulate across calls until ResetGradients, which lets callers
// average over a batch before an optimizer step.
func (d *Dense) Backward(grad []float64) []float64 {
	for o := 0; o < d.outSize; o++ {
		deriv := d.act.Derivative(d.preActBuf[o])
		d.dzBuf[o] = grad[o] * deriv
		d.gradBBuf[o] += d.dzBuf[o]
	}

	for o := 0; o < d.outSize; o++ {
		dzo := d.dzBuf[o]
		wBase := o * d.inSize
		for i := 0; i < d.inSize; i++ {
			d.gradWBuf[wBase+i] += dzo * d.inputBuf[i]
		}
	}

	for i := 0; i < d.inSize; i++ {
		sum := 0.0
		for o := 0; o < d.outSize; o++ {
			sum += d.dzBuf[o] * d.weights[o*d.inSize+i]
		}
		d.gradInBuf[i] = sum
	}
	return d.gradInBuf[:d.inSize]
}

// Params returns all dense layer parameters flattened.
func (d *Dense) Params() []float64 {
	params := make([]float64, 0, len(d.weights)+len(d.biases))
	params = append(params, d.weights...)
	params = append(params, d.biases...)
	return params
}

// SetParams updates weights and biases from a flattened slice.
func (d *Dense) SetParams(params []float64) {
	copy(d.weights, params[:len(d.weights)])
	copy(d.biases, params[len(d.weights):])
}

// Gradients returns all dense layer gradients flattened.
func (d *Dense) Gradients() []float64 {
	gradients := make([]float64, 0, len(d.gradWBuf)+len(d.gradBBuf))
	gradients = append(gradients, d.gradWBuf...)
	gradients = append(gradients, d.gradBBuf...)
	return gradients
}

// ResetGradients zeros the accumulated gradients.
func (d *Dense) ResetGradients() {
	for i := range d.gradWBuf {
		d.gradWBuf[i] = 0
	}
	for i := range d.gradBBuf {
		d.gradBBuf[i] = 0
	}
}

// InSize returns the input size of the layer.
func (d *Dense) InSize() int { return d.inSize }

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int { return d.outSize }

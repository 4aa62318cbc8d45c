package layer

import (
	"math"

	"pvfusion/internal/activations"
)

// Conv2D is a 2D convolutional layer using direct convolution.
// Input and output are flat [channels * height * width] slices; the spatial
// dimensions are fixed at construction.
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	inputHeight int
	inputWidth  int
	outHeight   int
	outWidth    int

	// weights [outChannels, inChannels, kernelSize, kernelSize], row-major
	weights []float64
	biases  []float64

	act activations.Activation

	preActBuf   []float64
	outputBuf   []float64
	gradWeights []float64
	gradBiases  []float64
	gradInBuf   []float64
	savedInput  []float64
}

// NewConv2D creates a 2D convolutional layer for a fixed input size.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding, inputHeight, inputWidth int,
	act activations.Activation, rng *RNG) *Conv2D {

	// He initialization
	scale := math.Sqrt(2.0 / float64(inChannels*kernelSize*kernelSize))
	weights := make([]float64, outChannels*inChannels*kernelSize*kernelSize)
	for i := range weights {
		weights[i] = rng.RandFloat()*2*scale - scale
	}
	biases := make([]float64, outChannels)

	outHeight := (inputHeight+2*padding-kernelSize)/stride + 1
	outWidth := (inputWidth+2*padding-kernelSize)/stride + 1

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		inputHeight: inputHeight,
		inputWidth:  inputWidth,
		outHeight:   outHeight,
		outWidth:    outWidth,
		weights:     weights,
		biases:      biases,
		act:         act,
		preActBuf:   make([]float64, outChannels*outHeight*outWidth),
		outputBuf:   make([]float64, outChannels*outHeight*outWidth),
		gradWeights: make([]float64, len(weights)),
		gradBiases:  make([]float64, outChannels),
		gradInBuf:   make([]float64, inChannels*inputHeight*inputWidth),
		savedInput:  make([]float64, inChannels*inputHeight*inputWidth),
	}
}

// OutSize returns the flat output length.
func (c *Conv2D) OutSize() int { return c.outChannels * c.outHeight * c.outWidth }

// InSize returns the flat input length.
func (c *Conv2D) InSize() int { return c.inChannels * c.inputHeight * c.inputWidth }

func (c *Conv2D) inputAt(ch, y, x int) float64 {
	if y < 0 || y >= c.inputHeight || x < 0 || x >= c.inputWidth {
		return 0
	}
	return c.savedInput[(ch*c.inputHeight+y)*c.inputWidth+x]
}

// Forward performs the convolution followed by the activation.
func (c *Conv2D) Forward(x []float64) []float64 {
	if len(x) != c.InSize() {
		panic("layer: Conv2D input length does not match declared shape")
	}
	copy(c.savedInput, x)

	k := c.kernelSize
	for o := 0; o < c.outChannels; o++ {
		for oy := 0; oy < c.outHeight; oy++ {
			for ox := 0; ox < c.outWidth; ox++ {
				sum := c.biases[o]
				for ic := 0; ic < c.inChannels; ic++ {
					wBase := ((o*c.inChannels + ic) * k) * k
					iy0 := oy*c.stride - c.padding
					ix0 := ox*c.stride - c.padding
					for ky := 0; ky < k; ky++ {
						for kx := 0; kx < k; kx++ {
							sum += c.weights[wBase+ky*k+kx] * c.inputAt(ic, iy0+ky, ix0+kx)
						}
					}
				}
				idx := (o*c.outHeight+oy)*c.outWidth + ox
				c.preActBuf[idx] = sum
				c.outputBuf[idx] = c.act.Activate(sum)
			}
		}
	}
	return c.outputBuf
}

// Backward accumulates kernel/bias gradients and returns the input gradient.
func (c *Conv2D) Backward(grad []float64) []float64 {
	k := c.kernelSize
	for i := range c.gradInBuf {
		c.gradInBuf[i] = 0
	}

	for o := 0; o < c.outChannels; o++ {
		for oy := 0; oy < c.outHeight; oy++ {
			for ox := 0; ox < c.outWidth; ox++ {
				idx := (o*c.outHeight+oy)*c.outWidth + ox
				dz := grad[idx] * c.act.Derivative(c.preActBuf[idx])
				c.gradBiases[o] += dz
				iy0 := oy*c.stride - c.padding
				ix0 := ox*c.stride - c.padding
				for ic := 0; ic < c.inChannels; ic++ {
					wBase := ((o*c.inChannels + ic) * k) * k
					for ky := 0; ky < k; ky++ {
						iy := iy0 + ky
						if iy < 0 || iy >= c.inputHeight {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := ix0 + kx
							if ix < 0 || ix >= c.inputWidth {
								continue
							}
							inIdx := (ic*c.inputHeight+iy)*c.inputWidth + ix
							c.gradWeights[wBase+ky*k+kx] += dz * c.savedInput[inIdx]
							c.gradInBuf[inIdx] += dz * c.weights[wBase+ky*k+kx]
						}
					}
				}
			}
		}
	}
	return c.gradInBuf
}

// Params returns kernel weights and biases flattened.
func (c *Conv2D) Params() []float64 {
	params := make([]float64, 0, len(c.weights)+len(c.biases))
	params = append(params, c.weights...)
	params = append(params, c.biases...)
	return params
}

// SetParams updates kernel weights and biases from a flattened slice.
func (c *Conv2D) SetParams(params []float64) {
	copy(c.weights, params[:len(c.weights)])
	copy(c.biases, params[len(c.weights):])
}

// Gradients returns the accumulated gradients flattened.
func (c *Conv2D) Gradients() []float64 {
	gradients := make([]float64, 0, len(c.gradWeights)+len(c.gradBiases))
	gradients = append(gradients, c.gradWeights...)
	gradients = append(gradients, c.gradBiases...)
	return gradients
}

// ResetGradients zeros the accumulated gradients.
func (c *Conv2D) ResetGradients() {
	for i := range c.gradWeights {
		c.gradWeights[i] = 0
	}
	for i := range c.gradBiases {
		c.gradBiases[i] = 0
	}
}

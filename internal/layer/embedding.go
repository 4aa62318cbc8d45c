package layer

import (
	"math"
)

// Embedding maps a single integer index to a dense embedding vector.
// Gradients are sparse: only the row looked up in the forward pass is
// updated on backward.
type Embedding struct {
	numEmbeddings int
	embeddingDim  int

	// weight matrix [numEmbeddings, embeddingDim], row-major
	weights []float64

	outputBuf   []float64
	gradWeights []float64

	savedIndex int
}

// NewEmbedding creates a new embedding layer.
// numEmbeddings is the size of the index domain, embeddingDim the vector width.
func NewEmbedding(numEmbeddings, embeddingDim int, rng *RNG) *Embedding {
	scale := math.Sqrt(3.0 / float64(embeddingDim))
	weights := make([]float64, numEmbeddings*embeddingDim)
	for i := range weights {
		weights[i] = scale * (2*rng.RandFloat() - 1)
	}
	return &Embedding{
		numEmbeddings: numEmbeddings,
		embeddingDim:  embeddingDim,
		weights:       weights,
		outputBuf:     make([]float64, embeddingDim),
		gradWeights:   make([]float64, numEmbeddings*embeddingDim),
		savedIndex:    -1,
	}
}

// NumEmbeddings returns the index domain size.
func (e *Embedding) NumEmbeddings() int { return e.numEmbeddings }

// EmbeddingDim returns the embedding vector width.
func (e *Embedding) EmbeddingDim() int { return e.embeddingDim }

// Lookup returns the embedding row for idx. The caller must have validated
// that idx is in range; out-of-range lookups panic.
func (e *Embedding) Lookup(idx int) []float64 {
	if idx < 0 || idx >= e.numEmbeddings {
		panic("layer: embedding index out of range")
	}
	e.savedIndex = idx
	copy(e.outputBuf, e.weights[idx*e.embeddingDim:(idx+1)*e.embeddingDim])
	return e.outputBuf[:e.embeddingDim]
}

// Forward treats x[0] as the index, satisfying the Layer interface.
func (e *Embedding) Forward(x []float64) []float64 {
	return e.Lookup(int(x[0]))
}

// Backward accumulates the gradient into the row selected by the last
// forward pass. The input has no gradient (indices are not differentiable).
func (e *Embedding) Backward(grad []float64) []float64 {
	if e.savedIndex >= 0 {
		base := e.savedIndex * e.embeddingDim
		for d := 0; d < e.embeddingDim; d++ {
			e.gradWeights[base+d] += grad[d]
		}
	}
	return nil
}

// Params returns the embedding weights flattened.
func (e *Embedding) Params() []float64 {
	params := make([]float64, len(e.weights))
	copy(params, e.weights)
	return params
}

// SetParams updates the embedding weights from a flattened slice.
func (e *Embedding) SetParams(params []float64) {
	copy(e.weights, params)
}

// Gradients returns the accumulated weight gradients flattened.
func (e *Embedding) Gradients() []float64 {
	gradients := make([]float64, len(e.gradWeights))
	copy(gradients, e.gradWeights)
	return gradients
}

// ResetGradients zeros the accumulated gradients.
func (e *Embedding) ResetGradients() {
	for i := range e.gradWeights {
		e.gradWeights[i] = 0
	}
}

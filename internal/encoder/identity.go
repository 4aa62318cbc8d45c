package encoder

import (
	"fmt"

	"pvfusion/internal/layer"
	"pvfusion/internal/tensor"
)

// DefaultIdentityCardinality is the GSP id domain size observed in the data.
const DefaultIdentityCardinality = 318

// Identity maps a bounded integer location id to an embedding vector.
type Identity struct {
	embed *layer.Embedding
}

// NewIdentity creates an identity embedding over a fixed id domain.
func NewIdentity(cardinality, dim int, rng *layer.RNG) (*Identity, error) {
	if cardinality <= 0 || dim <= 0 {
		return nil, fmt.Errorf("encoder: identity embedding needs positive cardinality and dim, got %d and %d", cardinality, dim)
	}
	return &Identity{embed: layer.NewEmbedding(cardinality, dim, rng)}, nil
}

// Encode returns the embedding for id, or an error when id is outside the
// configured domain.
func (e *Identity) Encode(id int) ([]float64, error) {
	if id < 0 || id >= e.embed.NumEmbeddings() {
		return nil, fmt.Errorf("encoder: identity id %d outside domain [0, %d)", id, e.embed.NumEmbeddings())
	}
	return e.embed.Lookup(id), nil
}

// Backward accumulates the gradient into the last looked-up embedding row.
func (e *Identity) Backward(grad []float64) {
	e.embed.Backward(grad)
}

// OutFeatures returns the embedding width.
func (e *Identity) OutFeatures() int { return e.embed.EmbeddingDim() }

// Params returns the embedding parameters.
func (e *Identity) Params() []float64 { return e.embed.Params() }

// SetParams updates the embedding parameters.
func (e *Identity) SetParams(params []float64) { e.embed.SetParams(params) }

// Gradients returns the embedding gradients.
func (e *Identity) Gradients() []float64 { return e.embed.Gradients() }

// ResetGradients zeros the accumulated gradients.
func (e *Identity) ResetGradients() { e.embed.ResetGradients() }

// ImageEmbedding appends one extra channel to an image-like sample, derived
// from a per-id spatial embedding broadcast over the time axis. It is applied
// before an image encoder whose channel contract includes the extra channel.
type ImageEmbedding struct {
	embed *layer.Embedding
	size  int
}

// NewImageEmbedding creates the augmentation for square images of the given
// size. Each id owns a size*size spatial map.
func NewImageEmbedding(cardinality, size int, rng *layer.RNG) (*ImageEmbedding, error) {
	if cardinality <= 0 || size <= 0 {
		return nil, fmt.Errorf("encoder: image embedding needs positive cardinality and size, got %d and %d", cardinality, size)
	}
	return &ImageEmbedding{
		embed: layer.NewEmbedding(cardinality, size*size, rng),
		size:  size,
	}, nil
}

// Augment returns a copy of sample [T, C, H, W] extended to [T, C+1, H, W]
// with the id's spatial map as the trailing channel of every time step.
func (e *ImageEmbedding) Augment(sample *tensor.Tensor, id int) (*tensor.Tensor, error) {
	if id < 0 || id >= e.embed.NumEmbeddings() {
		return nil, fmt.Errorf("encoder: identity id %d outside domain [0, %d)", id, e.embed.NumEmbeddings())
	}
	shape := sample.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("encoder: image embedding needs a [T C H W] sample, got rank %d", len(shape))
	}
	t, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if h != e.size || w != e.size {
		return nil, fmt.Errorf("encoder: image embedding map is %dx%d but sample is %dx%d", e.size, e.size, h, w)
	}

	spatial := e.embed.Lookup(id)
	out := tensor.Zeros(t, c+1, h, w)
	src := sample.Data()
	dst := out.Data()
	plane := h * w
	for ti := 0; ti < t; ti++ {
		copy(dst[ti*(c+1)*plane:ti*(c+1)*plane+c*plane], src[ti*c*plane:(ti+1)*c*plane])
		copy(dst[ti*(c+1)*plane+c*plane:(ti+1)*(c+1)*plane], spatial)
	}
	return out, nil
}

// Accumulate routes the gradient of an augmented sample back into the
// embedding row used by the last Augment call. gradAug is the flattened
// gradient of the [T, C+1, H, W] augmented sample.
func (e *ImageEmbedding) Accumulate(gradAug []float64, t, cAug int) {
	plane := e.size * e.size
	rowGrad := make([]float64, plane)
	for ti := 0; ti < t; ti++ {
		base := ti*cAug*plane + (cAug-1)*plane
		for i := 0; i < plane; i++ {
			rowGrad[i] += gradAug[base+i]
		}
	}
	e.embed.Backward(rowGrad)
}

// Params returns the embedding parameters.
func (e *ImageEmbedding) Params() []float64 { return e.embed.Params() }

// SetParams updates the embedding parameters.
func (e *ImageEmbedding) SetParams(params []float64) { e.embed.SetParams(params) }

// Gradients returns the embedding gradients.
func (e *ImageEmbedding) Gradients() []float64 { return e.embed.Gradients() }

// ResetGradients zeros the accumulated gradients.
func (e *ImageEmbedding) ResetGradients() { e.embed.ResetGradients() }

// OutFeatures is the spatial map width (size * size).
func (e *ImageEmbedding) OutFeatures() int { return e.size * e.size }

// Package tensor provides a dense row-major tensor used for image-like
// model inputs (time, channel, height, width).
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major tensor of float64 values.
type Tensor struct {
	shape []int
	data  []float64
}

// New creates a tensor with the given shape, backed by data. The length of
// data must equal the product of the shape dimensions.
func New(data []float64, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("tensor: invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if len(data) != n {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (want %d)", len(data), shape, n)
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{shape: s, data: data}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{shape: s, data: make([]float64, n)}
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	s := make([]int, len(t.shape))
	copy(s, t.shape)
	return s
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data returns the backing slice. Mutating it mutates the tensor.
func (t *Tensor) Data() []float64 { return t.data }

// Dim returns the size of axis i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match tensor rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, ix := range idx {
		if ix < 0 || ix >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + ix
	}
	return off
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set writes the element at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	s := make([]int, len(t.shape))
	copy(s, t.shape)
	return &Tensor{shape: s, data: data}
}

// SliceTime returns a view-like copy truncated to the first n steps of the
// leading (time) axis.
func (t *Tensor) SliceTime(n int) (*Tensor, error) {
	if t.Rank() < 1 {
		return nil, fmt.Errorf("tensor: cannot slice scalar")
	}
	if n <= 0 || n > t.shape[0] {
		return nil, fmt.Errorf("tensor: time slice %d out of range for axis length %d", n, t.shape[0])
	}
	stride := len(t.data) / t.shape[0]
	s := make([]int, len(t.shape))
	copy(s, t.shape)
	s[0] = n
	return &Tensor{shape: s, data: t.data[:n*stride]}, nil
}

// CenterCrop crops the trailing two (height, width) axes to size x size,
// keeping the center. The crop size must not exceed either spatial dimension.
func (t *Tensor) CenterCrop(size int) (*Tensor, error) {
	r := t.Rank()
	if r < 2 {
		return nil, fmt.Errorf("tensor: center crop needs at least 2 axes, have %d", r)
	}
	h, w := t.shape[r-2], t.shape[r-1]
	if size > h || size > w {
		return nil, fmt.Errorf("tensor: crop size %d exceeds spatial dims %dx%d", size, h, w)
	}
	if size == h && size == w {
		return t, nil
	}
	top := (h - size) / 2
	left := (w - size) / 2

	outer := len(t.data) / (h * w)
	outShape := make([]int, r)
	copy(outShape, t.shape)
	outShape[r-2], outShape[r-1] = size, size

	out := make([]float64, outer*size*size)
	for o := 0; o < outer; o++ {
		src := t.data[o*h*w:]
		dst := out[o*size*size:]
		for row := 0; row < size; row++ {
			copy(dst[row*size:(row+1)*size], src[(top+row)*w+left:(top+row)*w+left+size])
		}
	}
	return &Tensor{shape: outShape, data: out}, nil
}

// SwapTimeChannel transposes the leading two axes of a rank-4 tensor,
// turning [T, C, H, W] into [C, T, H, W] or back.
func (t *Tensor) SwapTimeChannel() (*Tensor, error) {
	if t.Rank() != 4 {
		return nil, fmt.Errorf("tensor: swap needs a rank-4 tensor, have rank %d", t.Rank())
	}
	a, b, h, w := t.shape[0], t.shape[1], t.shape[2], t.shape[3]
	plane := h * w
	out := make([]float64, len(t.data))
	for i := 0; i < a; i++ {
		for j := 0; j < b; j++ {
			copy(out[(j*a+i)*plane:(j*a+i+1)*plane], t.data[(i*b+j)*plane:(i*b+j+1)*plane])
		}
	}
	return &Tensor{shape: []int{b, a, h, w}, data: out}, nil
}

// Clip clamps every element into [lo, hi] in place and returns the tensor.
func (t *Tensor) Clip(lo, hi float64) *Tensor {
	for i, v := range t.data {
		if v < lo {
			t.data[i] = lo
		} else if v > hi {
			t.data[i] = hi
		}
	}
	return t
}

// MaxAbs returns the largest absolute element value, or 0 for empty data.
func (t *Tensor) MaxAbs() float64 {
	if len(t.data) == 0 {
		return 0
	}
	hi := floats.Max(t.data)
	lo := floats.Min(t.data)
	if -lo > hi {
		return -lo
	}
	return hi
}

// Equal reports whether two tensors have the same shape and all elements
// within tol of each other.
func Equal(a, b *Tensor, tol float64) bool {
	if a.Rank() != b.Rank() {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return floats.EqualApprox(a.data, b.data, tol)
}

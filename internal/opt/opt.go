// Package opt provides optimization algorithms.
package opt

import "math"

// Optimizer updates parameters based on gradients.
type Optimizer interface {
	// Step computes updated parameters and returns them in a new slice.
	Step(params, gradients []float64) []float64

	// StepInPlace updates params in place to avoid allocations.
	StepInPlace(params, gradients []float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LearningRate float64
}

// Step computes updated parameters: params - lr * gradients
func (s SGD) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	for i := range params {
		result[i] = params[i] - s.LearningRate*gradients[i]
	}
	return result
}

// StepInPlace updates params in-place: params = params - lr * gradients
func (s SGD) StepInPlace(params, gradients []float64) {
	for i := range params {
		params[i] -= s.LearningRate * gradients[i]
	}
}

// Adam optimizer with bias-corrected first and second moment estimates.
// State is lazily sized to the parameter vector on the first step.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	m []float64
	v []float64
	t int
}

// NewAdam creates an Adam optimizer with the usual defaults.
func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

func (a *Adam) ensureState(n int) {
	if len(a.m) != n {
		a.m = make([]float64, n)
		a.v = make([]float64, n)
		a.t = 0
	}
}

// Step computes updated parameters and returns them in a new slice.
func (a *Adam) Step(params, gradients []float64) []float64 {
	result := make([]float64, len(params))
	copy(result, params)
	a.StepInPlace(result, gradients)
	return result
}

// StepInPlace updates params in place using Adam.
func (a *Adam) StepInPlace(params, gradients []float64) {
	a.ensureState(len(params))
	a.t++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i := range params {
		g := gradients[i]
		a.m[i] = a.Beta1*a.m[i] + (1-a.Beta1)*g
		a.v[i] = a.Beta2*a.v[i] + (1-a.Beta2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= a.LearningRate * mHat / (math.Sqrt(vHat) + a.Epsilon)
	}
}

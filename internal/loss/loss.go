// Package loss provides the regression losses used by the forecasting models.
package loss

import (
	"fmt"
	"math"
)

// BackwardInPlacer is an optional interface for loss functions that support
// in-place gradient computation to avoid allocations.
type BackwardInPlacer interface {
	BackwardInPlace(yPred, yTrue, grad []float64)
}

// Loss is a loss function with derivative.
type Loss interface {
	// Forward computes the loss between predicted and true values.
	Forward(yPred, yTrue []float64) float64

	// Backward computes the gradient of the loss w.r.t. prediction.
	Backward(yPred, yTrue []float64) []float64
}

// MSE (Mean Squared Error) loss, tracked as a secondary metric.
type MSE struct{}

// Forward computes mean squared error: (1/n) * sum((y_pred - y_true)^2)
func (m MSE) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("loss: MSE prediction and target must have same length")
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yPred[i] - yTrue[i]
		sum += diff * diff
	}
	return sum / float64(n)
}

// Backward computes gradient: dL/dy_pred = (2/n) * (y_pred - y_true)
func (m MSE) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	m.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into the provided slice.
func (m MSE) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("loss: MSE slices must have same length")
	}
	factor := 2.0 / float64(n)
	for i := 0; i < n; i++ {
		grad[i] = factor * (yPred[i] - yTrue[i])
	}
}

// L1Loss (Mean Absolute Error). Primary loss for point forecasts and the
// per-modality feature-matching loss in distillation.
type L1Loss struct{}

// Forward computes mean absolute error: (1/n) * sum(|y_pred - y_true|)
func (l L1Loss) Forward(yPred, yTrue []float64) float64 {
	n := len(yPred)
	if n != len(yTrue) {
		panic("loss: L1 prediction and target must have same length")
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yPred[i] - yTrue[i])
	}
	return sum / float64(n)
}

// Backward computes gradient: dL/dy_pred = (1/n) * sign(y_pred - y_true)
func (l L1Loss) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	l.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into the provided slice.
func (l L1Loss) BackwardInPlace(yPred, yTrue, grad []float64) {
	n := len(yPred)
	if n != len(yTrue) || n != len(grad) {
		panic("loss: L1 slices must have same length")
	}
	factor := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		diff := yPred[i] - yTrue[i]
		switch {
		case diff > 0:
			grad[i] = factor
		case diff < 0:
			grad[i] = -factor
		default:
			grad[i] = 0
		}
	}
}

// Quantile is the pinball loss for quantile regression.
//
// Predictions are quantile-minor: yPred holds all quantiles for step 0, then
// all quantiles for step 1, and so on, so len(yPred) = len(yTrue) * len(qs).
type Quantile struct {
	qs []float64
}

// NewQuantile validates the quantile list: non-empty, strictly increasing,
// each value in (0, 1).
func NewQuantile(qs []float64) (*Quantile, error) {
	if len(qs) == 0 {
		return nil, fmt.Errorf("loss: quantile list is empty")
	}
	prev := 0.0
	for i, q := range qs {
		if q <= 0 || q >= 1 {
			return nil, fmt.Errorf("loss: quantile %g at position %d outside (0, 1)", q, i)
		}
		if q <= prev {
			return nil, fmt.Errorf("loss: quantile list must be strictly increasing, got %v", qs)
		}
		prev = q
	}
	out := make([]float64, len(qs))
	copy(out, qs)
	return &Quantile{qs: out}, nil
}

// Quantiles returns a copy of the quantile list.
func (p *Quantile) Quantiles() []float64 {
	out := make([]float64, len(p.qs))
	copy(out, p.qs)
	return out
}

// NumQuantiles returns the number of predicted quantiles.
func (p *Quantile) NumQuantiles() int { return len(p.qs) }

// Forward computes the pinball loss averaged over steps and quantiles.
func (p *Quantile) Forward(yPred, yTrue []float64) float64 {
	nq := len(p.qs)
	steps := len(yTrue)
	if len(yPred) != steps*nq {
		panic("loss: quantile prediction length must be targets * quantiles")
	}
	var sum float64
	for t := 0; t < steps; t++ {
		for j, q := range p.qs {
			diff := yTrue[t] - yPred[t*nq+j]
			if diff >= 0 {
				sum += q * diff
			} else {
				sum += (q - 1) * diff
			}
		}
	}
	return sum / float64(steps*nq)
}

// Backward computes the pinball loss subgradient w.r.t. each prediction.
func (p *Quantile) Backward(yPred, yTrue []float64) []float64 {
	grad := make([]float64, len(yPred))
	p.BackwardInPlace(yPred, yTrue, grad)
	return grad
}

// BackwardInPlace computes the gradient into the provided slice.
func (p *Quantile) BackwardInPlace(yPred, yTrue, grad []float64) {
	nq := len(p.qs)
	steps := len(yTrue)
	if len(yPred) != steps*nq || len(grad) != len(yPred) {
		panic("loss: quantile slices must match targets * quantiles")
	}
	factor := 1.0 / float64(steps*nq)
	for t := 0; t < steps; t++ {
		for j, q := range p.qs {
			diff := yTrue[t] - yPred[t*nq+j]
			if diff >= 0 {
				grad[t*nq+j] = -q * factor
			} else {
				grad[t*nq+j] = (1 - q) * factor
			}
		}
	}
}

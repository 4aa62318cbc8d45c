package loss

import (
	"math"
	"testing"
)

func TestMSE(t *testing.T) {
	var l MSE
	got := l.Forward([]float64{1, 2, 3}, []float64{1, 0, 0})
	want := (0.0 + 4 + 9) / 3
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Forward = %v, want %v", got, want)
	}

	grad := l.Backward([]float64{1, 2}, []float64{0, 0})
	if math.Abs(grad[0]-1) > 1e-12 || math.Abs(grad[1]-2) > 1e-12 {
		t.Errorf("Backward = %v, want [1 2]", grad)
	}
}

func TestL1(t *testing.T) {
	var l L1Loss
	got := l.Forward([]float64{1, -2}, []float64{0, 0})
	if math.Abs(got-1.5) > 1e-12 {
		t.Errorf("Forward = %v, want 1.5", got)
	}

	grad := l.Backward([]float64{1, -2, 0}, []float64{0, 0, 0})
	want := []float64{1.0 / 3, -1.0 / 3, 0}
	for i := range want {
		if math.Abs(grad[i]-want[i]) > 1e-12 {
			t.Fatalf("Backward = %v, want %v", grad, want)
		}
	}
}

func TestMismatchedLengthsPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("mismatched lengths did not panic")
		}
	}()
	L1Loss{}.Forward([]float64{1, 2}, []float64{1})
}

func TestNewQuantileValidation(t *testing.T) {
	tests := []struct {
		name    string
		qs      []float64
		wantErr bool
	}{
		{"valid", []float64{0.1, 0.5, 0.9}, false},
		{"single", []float64{0.5}, false},
		{"empty", nil, true},
		{"zero", []float64{0, 0.5}, true},
		{"one", []float64{0.5, 1}, true},
		{"not increasing", []float64{0.5, 0.5}, true},
		{"decreasing", []float64{0.9, 0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQuantile(tt.qs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewQuantile(%v) error = %v, wantErr %v", tt.qs, err, tt.wantErr)
			}
		})
	}
}

func TestQuantileForward(t *testing.T) {
	p, err := NewQuantile([]float64{0.25, 0.75})
	if err != nil {
		t.Fatal(err)
	}
	// One step, y = 1. Predictions 0 (under) and 2 (over).
	// under: q * (y - pred) = 0.25 * 1; over: (q-1) * (y - pred) = -0.25 * -1.
	got := p.Forward([]float64{0, 2}, []float64{1})
	want := (0.25*1 + 0.25*1) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Forward = %v, want %v", got, want)
	}
}

func TestQuantileMedianMatchesHalfMAE(t *testing.T) {
	p, _ := NewQuantile([]float64{0.5})
	yPred := []float64{0.2, 0.9, 0.4}
	yTrue := []float64{0.5, 0.5, 0.5}
	got := p.Forward(yPred, yTrue)
	want := 0.5 * L1Loss{}.Forward(yPred, yTrue)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("median pinball = %v, want half of MAE %v", got, want)
	}
}

func TestQuantileBackwardSigns(t *testing.T) {
	p, _ := NewQuantile([]float64{0.1, 0.9})
	// Step 0: both predictions below the target, so diff >= 0 and the
	// subgradient is -q/n for each quantile.
	grad := p.Backward([]float64{0, 0, 2, 2}, []float64{1, 1})
	n := 4.0
	want := []float64{-0.1 / n, -0.9 / n, (1 - 0.1) / n, (1 - 0.9) / n}
	for i := range want {
		if math.Abs(grad[i]-want[i]) > 1e-12 {
			t.Fatalf("Backward = %v, want %v", grad, want)
		}
	}
}

func TestQuantileForwardPanicsOnBadWidth(t *testing.T) {
	p, _ := NewQuantile([]float64{0.5})
	defer func() {
		if recover() == nil {
			t.Fatal("wrong prediction width did not panic")
		}
	}()
	p.Forward([]float64{1, 2, 3}, []float64{1, 2})
}

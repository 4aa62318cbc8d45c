// Package fusion concatenates per-modality feature vectors into the single
// vector consumed by the output network.
package fusion

import (
	"fmt"

	"pvfusion/internal/layer"
)

// Modes is the ordered per-modality feature collection built on each forward
// pass. Order is insertion order and is part of the model's wire contract:
// the output network's input layout depends on it.
type Modes struct {
	names []string
	feats map[string][]float64
}

// NewModes creates an empty ordered collection.
func NewModes() *Modes {
	return &Modes{feats: make(map[string][]float64)}
}

// Add appends a named feature vector. Duplicate names are a programming
// error and panic.
func (m *Modes) Add(name string, features []float64) {
	if _, ok := m.feats[name]; ok {
		panic(fmt.Sprintf("fusion: duplicate modality %q", name))
	}
	m.names = append(m.names, name)
	m.feats[name] = features
}

// Get returns the feature vector for name, or nil.
func (m *Modes) Get(name string) []float64 { return m.feats[name] }

// Names returns the modality names in insertion order.
func (m *Modes) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of modalities.
func (m *Modes) Len() int { return len(m.names) }

// Slot declares one modality's position and feature width in the fused
// vector.
type Slot struct {
	Name  string
	Width int
}

// Assembler concatenates modality feature vectors in a fixed order. The
// enabled modality set, order, and widths are decided once at construction.
//
// With a non-zero source dropout probability, each modality's whole feature
// vector is independently zeroed during training; evaluation mode is always
// a deterministic pass-through.
type Assembler struct {
	slots   []Slot
	offsets []int
	total   int

	sourceDropout float64
	training      bool
	rng           *layer.RNG

	// dropMask[i] records whether slot i was zeroed on the last Concat,
	// so SplitGrad can zero the matching gradients.
	dropMask []bool
}

// NewAssembler validates the slot declaration and dropout probability.
func NewAssembler(slots []Slot, sourceDropout float64) (*Assembler, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("fusion: no modalities enabled")
	}
	if sourceDropout < 0 || sourceDropout >= 1 {
		return nil, fmt.Errorf("fusion: source dropout %g outside [0, 1)", sourceDropout)
	}
	seen := make(map[string]bool, len(slots))
	offsets := make([]int, len(slots))
	total := 0
	for i, s := range slots {
		if s.Width <= 0 {
			return nil, fmt.Errorf("fusion: modality %q has non-positive width %d", s.Name, s.Width)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("fusion: duplicate modality %q", s.Name)
		}
		seen[s.Name] = true
		offsets[i] = total
		total += s.Width
	}
	out := make([]Slot, len(slots))
	copy(out, slots)
	return &Assembler{
		slots:         out,
		offsets:       offsets,
		total:         total,
		sourceDropout: sourceDropout,
		rng:           layer.NewRNG(1),
		dropMask:      make([]bool, len(slots)),
	}, nil
}

// TotalFeatures returns the fused vector width: the static sum of the
// enabled modalities' declared widths.
func (a *Assembler) TotalFeatures() int { return a.total }

// Slots returns the declared modality order.
func (a *Assembler) Slots() []Slot {
	out := make([]Slot, len(a.slots))
	copy(out, a.slots)
	return out
}

// SetTraining switches source dropout on (training) or off (evaluation).
func (a *Assembler) SetTraining(training bool) { a.training = training }

// Seed re-seeds the dropout RNG, for reproducible training runs.
func (a *Assembler) Seed(seed uint64) { a.rng = layer.NewRNG(seed) }

// Concat validates that modes matches the declared slots in name, order and
// width, then concatenates into one fused vector, applying source dropout in
// training mode.
func (a *Assembler) Concat(modes *Modes) ([]float64, error) {
	names := modes.Names()
	if len(names) != len(a.slots) {
		return nil, fmt.Errorf("fusion: got %d modalities, want %d", len(names), len(a.slots))
	}
	fused := make([]float64, a.total)
	for i, s := range a.slots {
		if names[i] != s.Name {
			return nil, fmt.Errorf("fusion: modality %d is %q, want %q", i, names[i], s.Name)
		}
		v := modes.Get(s.Name)
		if len(v) != s.Width {
			return nil, fmt.Errorf("fusion: modality %q has width %d, want %d", s.Name, len(v), s.Width)
		}
		a.dropMask[i] = a.training && a.sourceDropout > 0 && a.rng.RandFloat() < a.sourceDropout
		if !a.dropMask[i] {
			copy(fused[a.offsets[i]:a.offsets[i]+s.Width], v)
		}
	}
	return fused, nil
}

// SplitGrad splits a fused-vector gradient back into per-modality gradients
// in slot order, zeroing slots dropped on the last Concat.
func (a *Assembler) SplitGrad(grad []float64) ([][]float64, error) {
	if len(grad) != a.total {
		return nil, fmt.Errorf("fusion: gradient width %d, want %d", len(grad), a.total)
	}
	out := make([][]float64, len(a.slots))
	for i, s := range a.slots {
		g := make([]float64, s.Width)
		if !a.dropMask[i] {
			copy(g, grad[a.offsets[i]:a.offsets[i]+s.Width])
		}
		out[i] = g
	}
	return out, nil
}

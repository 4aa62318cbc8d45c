package batch

import (
	"math/rand"

	"pvfusion/internal/tensor"
)

// FakeSpec describes the shape of a synthetic batch for tests and examples.
type FakeSpec struct {
	BatchSize int

	// GSP / solar time axis length (history + forecast + 1 at 30-minute cadence).
	GSPSteps int

	// Satellite sample shape; zero SatSteps disables the modality.
	SatSteps    int
	SatChannels int
	SatSize     int

	// NWP sources mapped to their sample shapes.
	NWP map[string]FakeImageSpec

	// PV history length; zero disables.
	PVSteps int

	// Identity id domain; ids are drawn from [1, MaxID).
	MaxID int
}

// FakeImageSpec is the shape of one image-like modality sample.
type FakeImageSpec struct {
	Steps    int
	Channels int
	Size     int
}

// NewFake builds a random batch with the given shapes, seeded for
// reproducibility. It mirrors the synthetic batches the external pipeline
// produces, for use in model tests.
func NewFake(spec FakeSpec, seed int64) *Batch {
	rng := rand.New(rand.NewSource(seed))

	randomImage := func(s FakeImageSpec) *tensor.Tensor {
		t := tensor.Zeros(s.Steps, s.Channels, s.Size, s.Size)
		data := t.Data()
		for i := range data {
			data[i] = rng.Float64()
		}
		return t
	}
	randomSeries := func(steps int) []float64 {
		row := make([]float64, steps)
		for i := range row {
			row[i] = rng.Float64()
		}
		return row
	}

	b := &Batch{}
	for i := 0; i < spec.BatchSize; i++ {
		if spec.SatSteps > 0 {
			b.Satellite = append(b.Satellite, randomImage(FakeImageSpec{
				Steps: spec.SatSteps, Channels: spec.SatChannels, Size: spec.SatSize,
			}))
		}
		if spec.GSPSteps > 0 {
			b.GSP = append(b.GSP, randomSeries(spec.GSPSteps))
			b.SolarAzimuth = append(b.SolarAzimuth, randomSeries(spec.GSPSteps))
			b.SolarElevation = append(b.SolarElevation, randomSeries(spec.GSPSteps))
			ts := make([]int64, spec.GSPSteps)
			for j := range ts {
				ts[j] = int64(1700000000 + 1800*j)
			}
			b.TimestampsUTC = append(b.TimestampsUTC, ts)
		}
		if spec.PVSteps > 0 {
			b.PVHistory = append(b.PVHistory, randomSeries(spec.PVSteps))
		}
		if spec.MaxID > 1 {
			b.GSPID = append(b.GSPID, 1+rng.Intn(spec.MaxID-1))
		}
	}
	for src, is := range spec.NWP {
		if b.NWP == nil {
			b.NWP = make(map[string][]*tensor.Tensor, len(spec.NWP))
		}
		for i := 0; i < spec.BatchSize; i++ {
			b.NWP[src] = append(b.NWP[src], randomImage(is))
		}
	}
	return b
}

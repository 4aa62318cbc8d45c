// Package batch defines the keyed tensor schema produced by the external
// data pipeline. Models consume batches read-only.
package batch

import (
	"fmt"

	"pvfusion/internal/tensor"
)

// Target keys naming the prediction target series.
const (
	TargetGSP = "gsp"
	TargetPV  = "pv"
)

// Batch is one training or inference batch. Image-like modalities are stored
// per sample as [time, channel, height, width] tensors; sequence modalities
// as per-sample series. Optional modalities are nil / empty when absent.
//
// Every temporal axis covers history + forecast + 1 steps inclusive of "now";
// models truncate to their configured horizon before encoding.
type Batch struct {
	// Satellite imagery, one [T, C, H, W] tensor per example. Optional.
	Satellite []*tensor.Tensor

	// NWP grids keyed by source name, one [T, C, H, W] tensor per example.
	// Zero or more sources.
	NWP map[string][]*tensor.Tensor

	// Site-level PV yield series, one row per example.
	PVHistory [][]float64

	// GSP yield series at 30-minute cadence, one row per example.
	GSP [][]float64

	// Integer location identity per example.
	GSPID []int

	// Solar position series aligned with the GSP time axis.
	SolarAzimuth   [][]float64
	SolarElevation [][]float64

	// Unix timestamps of the GSP time axis, one row per example.
	TimestampsUTC [][]int64
}

// Size returns the number of examples, taken from the first present field.
func (b *Batch) Size() int {
	switch {
	case len(b.GSP) > 0:
		return len(b.GSP)
	case len(b.PVHistory) > 0:
		return len(b.PVHistory)
	case len(b.Satellite) > 0:
		return len(b.Satellite)
	case len(b.GSPID) > 0:
		return len(b.GSPID)
	}
	for _, samples := range b.NWP {
		return len(samples)
	}
	return 0
}

// Validate checks the schema contract: consistent batch size across present
// fields and every temporal axis at least minSteps long.
func (b *Batch) Validate(minSteps int) error {
	n := b.Size()
	if n == 0 {
		return fmt.Errorf("batch: empty batch")
	}

	checkSeries := func(name string, rows [][]float64) error {
		if len(rows) == 0 {
			return nil
		}
		if len(rows) != n {
			return fmt.Errorf("batch: %s has %d rows, want %d", name, len(rows), n)
		}
		for i, row := range rows {
			if len(row) < minSteps {
				return fmt.Errorf("batch: %s row %d has %d steps, want at least %d", name, i, len(row), minSteps)
			}
		}
		return nil
	}

	if err := checkSeries("gsp", b.GSP); err != nil {
		return err
	}
	if err := checkSeries("pv_history", b.PVHistory); err != nil {
		return err
	}
	if err := checkSeries("solar_azimuth", b.SolarAzimuth); err != nil {
		return err
	}
	if err := checkSeries("solar_elevation", b.SolarElevation); err != nil {
		return err
	}

	if len(b.Satellite) > 0 && len(b.Satellite) != n {
		return fmt.Errorf("batch: satellite has %d samples, want %d", len(b.Satellite), n)
	}
	for src, samples := range b.NWP {
		if len(samples) != n {
			return fmt.Errorf("batch: nwp/%s has %d samples, want %d", src, len(samples), n)
		}
	}
	if len(b.GSPID) > 0 && len(b.GSPID) != n {
		return fmt.Errorf("batch: gsp_id has %d values, want %d", len(b.GSPID), n)
	}
	if len(b.TimestampsUTC) > 0 && len(b.TimestampsUTC) != n {
		return fmt.Errorf("batch: timestamps have %d rows, want %d", len(b.TimestampsUTC), n)
	}
	return nil
}

// Series returns the target series for the given key. A batch that lacks
// the named series is a contract violation, not an empty result.
func (b *Batch) Series(targetKey string) ([][]float64, error) {
	var rows [][]float64
	switch targetKey {
	case TargetGSP:
		rows = b.GSP
	case TargetPV:
		rows = b.PVHistory
	default:
		return nil, fmt.Errorf("batch: unknown target key %q", targetKey)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch: target series %q is missing", targetKey)
	}
	return rows, nil
}

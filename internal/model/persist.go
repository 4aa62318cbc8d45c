package model

import (
	"log/slog"

	"pvfusion/internal/checkpoint"
)

// SaveCheckpoint writes the model's configuration and current parameters to
// dir. Epoch and validation loss are recorded in the snapshot; best also
// writes an epoch=N.ckpt file.
func (m *Multimodal) SaveCheckpoint(dir string, epoch int, valLoss float64, best bool) error {
	snap := checkpoint.Snapshot{Epoch: epoch, ValLoss: valLoss, Params: m.Params()}
	return checkpoint.Save(dir, m.cfg, snap, best)
}

// LoadMultimodal rebuilds a model from a checkpoint directory. With valBest
// it loads the best-validation snapshot instead of the last one.
func LoadMultimodal(dir string, valBest bool, logger *slog.Logger) (*Multimodal, error) {
	var cfg Config
	if err := checkpoint.LoadConfig(dir, &cfg); err != nil {
		return nil, err
	}
	snap, err := checkpoint.LoadSnapshot(dir, valBest)
	if err != nil {
		return nil, err
	}
	m, err := NewMultimodal(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := m.SetParams(snap.Params); err != nil {
		return nil, err
	}
	return m, nil
}

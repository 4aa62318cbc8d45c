// Package checkpoint persists model configurations and weight snapshots.
//
// A checkpoint directory holds a model_config.yaml next to one or more
// gob-encoded .ckpt files. Training writes last.ckpt after every epoch and
// an epoch=N.ckpt whenever the validation loss improves, mirroring the
// layout produced by common training harnesses.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFile is the name of the model configuration inside a
	// checkpoint directory.
	ConfigFile = "model_config.yaml"

	lastName    = "last.ckpt"
	epochPrefix = "epoch"
	ckptSuffix  = ".ckpt"
)

// Snapshot is what a .ckpt file contains.
type Snapshot struct {
	Epoch   int
	ValLoss float64
	Params  []float64
}

// Save writes the configuration and snapshot into dir, creating it if
// needed. When best is true the snapshot is written as epoch=N.ckpt in
// addition to last.ckpt, replacing any previous best file.
func Save(dir string, cfg any, snap Snapshot, best bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := writeSnapshot(filepath.Join(dir, lastName), snap); err != nil {
		return err
	}
	if !best {
		return nil
	}
	old, err := epochFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}
	name := fmt.Sprintf("%s=%d%s", epochPrefix, snap.Epoch, ckptSuffix)
	return writeSnapshot(filepath.Join(dir, name), snap)
}

func writeSnapshot(path string, snap Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("checkpoint: encoding %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// LoadConfig unmarshals dir's model_config.yaml into cfg.
func LoadConfig(dir string, cfg any) error {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("checkpoint: decoding %s: %w", ConfigFile, err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from dir. With valBest it loads the single
// epoch*.ckpt file and fails if none or several exist; otherwise it loads
// last.ckpt.
func LoadSnapshot(dir string, valBest bool) (Snapshot, error) {
	var snap Snapshot
	path := filepath.Join(dir, lastName)
	if valBest {
		matches, err := epochFiles(dir)
		if err != nil {
			return snap, err
		}
		switch len(matches) {
		case 0:
			return snap, fmt.Errorf("checkpoint: no %s*%s file in %s", epochPrefix, ckptSuffix, dir)
		case 1:
			path = matches[0]
		default:
			return snap, fmt.Errorf("checkpoint: %d %s*%s files in %s, want exactly one", len(matches), epochPrefix, ckptSuffix, dir)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return snap, fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("checkpoint: decoding %s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

func epochFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, epochPrefix+"*"+ckptSuffix))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return matches, nil
}

// Package pvfusion provides short-horizon solar power forecasting models.
//
// The core model fuses encoded satellite imagery, numerical weather
// prediction grids, site-level PV history, grid region identity and solar
// geometry into a single forecast of future generation, optionally as a set
// of quantiles. A distillation variant additionally supervises each modality
// encoder with a frozen single-modality teacher model.
package pvfusion

import (
	"log/slog"

	"pvfusion/internal/batch"
	"pvfusion/internal/model"
)

// Re-export the main types for easier access.
type (
	Config           = model.Config
	ImageModality    = model.ImageModality
	NWPSource        = model.NWPSource
	PVConfig         = model.PVConfig
	DistillConfig    = model.DistillConfig
	TeacherRef       = model.TeacherRef
	Multimodal       = model.Multimodal
	Distillation     = model.Distillation
	SmartPersistence = model.SmartPersistence
	Batch            = batch.Batch
)

// Target series keys.
const (
	TargetGSP = batch.TargetGSP
	TargetPV  = batch.TargetPV
)

// NewMultimodal builds the fusion forecaster from its configuration.
func NewMultimodal(cfg Config, logger *slog.Logger) (*Multimodal, error) {
	return model.NewMultimodal(cfg, logger)
}

// NewDistillation builds a fusion forecaster whose encoders are supervised
// by the frozen teachers named in cfg.Distill.
func NewDistillation(cfg Config, logger *slog.Logger) (*Distillation, error) {
	return model.NewDistillation(cfg, logger)
}

// NewSmartPersistence builds the clear-sky persistence baseline.
func NewSmartPersistence(historyMinutes, forecastMinutes int, targetKey string, logger *slog.Logger) (*SmartPersistence, error) {
	return model.NewSmartPersistence(historyMinutes, forecastMinutes, targetKey, logger)
}

// LoadMultimodal rebuilds a model from a checkpoint directory.
func LoadMultimodal(dir string, valBest bool, logger *slog.Logger) (*Multimodal, error) {
	return model.LoadMultimodal(dir, valBest, logger)
}

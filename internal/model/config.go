// Package model provides the forecasting model architectures: the shared
// base bookkeeping, the multimodal composite forecaster, the teacher-student
// distillation variant, and the smart-persistence baseline.
package model

import (
	"fmt"

	"pvfusion/internal/encoder"
)

// ImageModality configures one image-like modality (satellite or one NWP
// source): the encoder registry tag plus its declared shape contract.
type ImageModality struct {
	// EncoderTag selects the image encoder implementation from the
	// registry. Empty means "conv".
	EncoderTag string `yaml:"encoder_tag,omitempty"`

	encoder.ImageConfig `yaml:",inline"`
}

func (m ImageModality) tag() string {
	if m.EncoderTag == "" {
		return "conv"
	}
	return m.EncoderTag
}

// NWPSource is one named NWP source with its modality configuration.
// Source order in the config is the fusion order.
type NWPSource struct {
	Source string        `yaml:"source"`
	Image  ImageModality `yaml:"image"`
}

// PVConfig configures the site-level PV history encoder.
type PVConfig struct {
	SequenceLength int `yaml:"sequence_length"`
	HiddenFeatures int `yaml:"hidden_features,omitempty"`
	OutFeatures    int `yaml:"out_features"`
}

// DistillConfig configures teacher loading for the distillation model.
type DistillConfig struct {
	// Teachers maps a modality name ("sat", "pv", "nwp/<source>") to the
	// checkpoint directory of its pretrained unimodal model. Order is the
	// fusion order of the distilled modalities.
	Teachers []TeacherRef `yaml:"teachers"`

	// EncLossFrac blends the feature-matching loss with the primary loss.
	EncLossFrac float64 `yaml:"enc_loss_frac"`

	// ColdStart trains student encoders from scratch instead of seeding
	// them with the teacher weights.
	ColdStart bool `yaml:"cold_start"`

	// ValBest selects the single best-epoch checkpoint; otherwise the
	// last checkpoint is used.
	ValBest bool `yaml:"val_best"`
}

// TeacherRef names one teacher modality and its checkpoint directory.
type TeacherRef struct {
	Mode string `yaml:"mode"`
	Path string `yaml:"path"`
}

// Config is the immutable model configuration, decided once at construction.
type Config struct {
	HistoryMinutes  int       `yaml:"history_minutes"`
	ForecastMinutes int       `yaml:"forecast_minutes"`
	TargetKey       string    `yaml:"target_key"`
	OutputQuantiles []float64 `yaml:"output_quantiles,omitempty"`

	IncludeSat bool          `yaml:"include_sat"`
	Sat        ImageModality `yaml:"sat,omitempty"`

	NWP []NWPSource `yaml:"nwp,omitempty"`

	IncludePV bool     `yaml:"include_pv"`
	PV        PVConfig `yaml:"pv,omitempty"`

	IncludeGSPHistory bool `yaml:"include_gsp_yield_history"`
	IncludeSun        bool `yaml:"include_sun"`

	// EmbeddingDim is the identity embedding width; zero disables it.
	EmbeddingDim int `yaml:"embedding_dim"`

	// IdentityCardinality bounds the id domain; zero means the default 318.
	IdentityCardinality int `yaml:"identity_cardinality,omitempty"`

	// AddImageEmbedding appends an identity-derived channel to image
	// modalities before encoding. Image encoder channel contracts must
	// already include the extra channel.
	AddImageEmbedding bool `yaml:"add_image_embedding_channel"`

	SourceDropout float64 `yaml:"source_dropout"`

	// OutputHidden is the output network's hidden width; zero means 128.
	OutputHidden int `yaml:"output_hidden,omitempty"`

	LearningRate float64 `yaml:"learning_rate,omitempty"`

	// LRDecayEpochs decays the learning rate by LRDecayGamma every this
	// many epochs; zero disables the schedule.
	LRDecayEpochs int     `yaml:"lr_decay_epochs,omitempty"`
	LRDecayGamma  float64 `yaml:"lr_decay_gamma,omitempty"`

	Seed uint64 `yaml:"seed,omitempty"`

	Distill *DistillConfig `yaml:"distill,omitempty"`
}

func (c Config) identityCardinality() int {
	if c.IdentityCardinality == 0 {
		return encoder.DefaultIdentityCardinality
	}
	return c.IdentityCardinality
}

func (c Config) outputHidden() int {
	if c.OutputHidden == 0 {
		return 128
	}
	return c.OutputHidden
}

func (c Config) seed() uint64 {
	if c.Seed == 0 {
		return 42
	}
	return c.Seed
}

func (c Config) targetKey() string {
	if c.TargetKey == "" {
		return "gsp"
	}
	return c.TargetKey
}

// validate rejects configurations with no enabled modality or duplicate NWP
// sources. Horizon and quantile validation happens in NewBase.
func (c Config) validate() error {
	enabled := c.IncludeSat || c.IncludePV || c.IncludeGSPHistory || c.IncludeSun ||
		c.EmbeddingDim > 0 || len(c.NWP) > 0
	if !enabled {
		return fmt.Errorf("model: no modality enabled")
	}
	seen := make(map[string]bool, len(c.NWP))
	for _, src := range c.NWP {
		if src.Source == "" {
			return fmt.Errorf("model: NWP source with empty name")
		}
		if seen[src.Source] {
			return fmt.Errorf("model: duplicate NWP source %q", src.Source)
		}
		seen[src.Source] = true
	}
	return nil
}

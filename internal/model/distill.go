package model

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"pvfusion/internal/batch"
	"pvfusion/internal/loss"
)

// Numerical floor for the detached distillation scale.
const distillScaleEps = 1e-9

// blendLoss mixes the distillation and primary losses for one example. The
// distillation term is normalised by its own detached value and rescaled to
// the detached primary loss, then frac controls the mix.
func blendLoss(primary, distill, frac float64) float64 {
	scale := math.Max(distill, distillScaleEps)
	return distill/scale*primary*frac + primary*(1-frac)
}

type frozenTeacher struct {
	mode  string
	model *Multimodal
}

// Distillation trains a multi-modal student whose encoders are additionally
// supervised by frozen single-modality teacher models. Each teacher was
// trained on one modality; during a training step its encoder output for
// that modality is the target of an L1 feature-matching loss on the
// student's encoder output.
//
// The feature losses and the primary forecast loss are blended per example:
//
//	blended = distill/max(detach(distill), eps) * detach(primary) * frac
//	        + primary * (1 - frac)
//
// so the distillation term is rescaled to the magnitude of the primary loss
// and frac controls the mix. Teacher parameters are never part of Params or
// Gradients and never change.
type Distillation struct {
	*Multimodal

	teachers    []frozenTeacher
	encLossFrac float64
	featureLoss loss.L1Loss
}

// NewDistillation builds the student model from cfg and loads the frozen
// teachers named in cfg.Distill. Unless ColdStart is set, each supervised
// student encoder starts from its teacher's encoder weights.
func NewDistillation(cfg Config, logger *slog.Logger) (*Distillation, error) {
	if cfg.Distill == nil {
		return nil, fmt.Errorf("model: distillation requires a distill section")
	}
	if cfg.Distill.EncLossFrac < 0 || cfg.Distill.EncLossFrac > 1 {
		return nil, fmt.Errorf("model: enc_loss_frac %v outside [0, 1]", cfg.Distill.EncLossFrac)
	}
	if len(cfg.Distill.Teachers) == 0 {
		return nil, fmt.Errorf("model: distillation requires at least one teacher")
	}

	student, err := NewMultimodal(cfg, logger)
	if err != nil {
		return nil, err
	}
	d := &Distillation{
		Multimodal:  student,
		encLossFrac: cfg.Distill.EncLossFrac,
	}

	seen := make(map[string]bool)
	for _, ref := range cfg.Distill.Teachers {
		if seen[ref.Mode] {
			return nil, fmt.Errorf("model: duplicate teacher for modality %q", ref.Mode)
		}
		seen[ref.Mode] = true

		studentEnc, ok := student.modeEncoder(ref.Mode)
		if !ok {
			return nil, fmt.Errorf("model: teacher supervises modality %q, which the student does not use", ref.Mode)
		}
		tm, err := LoadMultimodal(ref.Path, cfg.Distill.ValBest, logger)
		if err != nil {
			return nil, fmt.Errorf("model: loading teacher for %q: %w", ref.Mode, err)
		}
		tm.SetTraining(false)
		teacherEnc, ok := tm.modeEncoder(ref.Mode)
		if !ok {
			return nil, fmt.Errorf("model: teacher checkpoint %s has no %q encoder", ref.Path, ref.Mode)
		}
		sp, tp := studentEnc.Params(), teacherEnc.Params()
		if len(sp) != len(tp) {
			return nil, fmt.Errorf("model: %q encoder shapes differ, student has %d parameters, teacher %d", ref.Mode, len(sp), len(tp))
		}
		if !cfg.Distill.ColdStart {
			studentEnc.SetParams(tp)
		}
		d.teachers = append(d.teachers, frozenTeacher{mode: ref.Mode, model: tm})
	}
	return d, nil
}

// Teachers lists the supervised modality names in configuration order.
func (d *Distillation) Teachers() []string {
	modes := make([]string, len(d.teachers))
	for i, t := range d.teachers {
		modes[i] = t.mode
	}
	return modes
}

// TeacherFeatures computes the frozen teachers' encoder outputs for example
// i, keyed by modality name.
func (d *Distillation) TeacherFeatures(b *batch.Batch, i int) (map[string][]float64, error) {
	feats := make(map[string][]float64, len(d.teachers))
	for _, t := range d.teachers {
		feat, err := t.model.EncodeMode(t.mode, b, i)
		if err != nil {
			return nil, fmt.Errorf("model: teacher %q: %w", t.mode, err)
		}
		feats[t.mode] = feat
	}
	return feats, nil
}

// TrainingStep runs one optimization step over the batch, adding the
// per-modality feature-matching losses to the primary forecast loss.
func (d *Distillation) TrainingStep(b *batch.Batch) (map[string]float64, error) {
	d.SetTraining(true)
	if err := b.Validate(d.GSPLen()); err != nil {
		return nil, err
	}
	series, err := b.Series(d.TargetKey())
	if err != nil {
		return nil, err
	}
	d.resetGradients()

	n := b.Size()
	frac := d.encLossFrac
	var primarySum, mseSum, distillSum, blendedSum float64
	grad := make([]float64, d.NumOutputFeatures())
	for i := 0; i < n; i++ {
		row, modes, err := d.forwardSample(b, i)
		if err != nil {
			return nil, err
		}
		y, err := d.Target(series[i])
		if err != nil {
			return nil, err
		}
		primary := d.PrimaryLoss(row, y)
		mseSum += d.MSEMetric(row, y)

		teacherFeats, err := d.TeacherFeatures(b, i)
		if err != nil {
			return nil, err
		}
		var distill float64
		for _, t := range d.teachers {
			distill += d.featureLoss.Forward(modes.Get(t.mode), teacherFeats[t.mode])
		}
		scale := math.Max(distill, distillScaleEps)
		blended := blendLoss(primary, distill, frac)

		// Output-path gradient carries the (1-frac) share of the
		// primary loss; the feature losses flow straight into the
		// supervised encoders with the detached scaling applied.
		d.PrimaryGrad(row, y, grad)
		floats.Scale(1-frac, grad)
		extra := make(map[string][]float64, len(d.teachers))
		coef := frac * primary / scale
		for _, t := range d.teachers {
			fg := d.featureLoss.Backward(modes.Get(t.mode), teacherFeats[t.mode])
			floats.Scale(coef, fg)
			extra[t.mode] = fg
		}
		if err := d.backwardSample(grad, b, i, extra); err != nil {
			return nil, err
		}

		primarySum += primary
		distillSum += distill
		blendedSum += blended
	}
	d.step(n)

	nf := float64(n)
	losses := map[string]float64{
		d.PrimaryLossName(): primarySum / nf,
		"MSE":               mseSum / nf,
		"distill":           distillSum / nf,
		"opt_loss":          blendedSum / nf,
	}
	for name, v := range losses {
		d.LogMetric(name+"/train", v)
	}
	return losses, nil
}

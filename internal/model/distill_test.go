package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainTeacher builds a model, nudges it off its initialization, and saves
// it as a checkpoint for distillation tests.
func trainTeacher(t *testing.T, best bool) string {
	t.Helper()
	teacher, err := NewMultimodal(testConfig(), nil)
	require.NoError(t, err)
	_, err = teacher.TrainingStep(testBatch(7))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, teacher.SaveCheckpoint(dir, 1, 0.25, best))
	return dir
}

func distillConfig(teacherDir string, frac float64) Config {
	cfg := testConfig()
	cfg.Distill = &DistillConfig{
		Teachers:    []TeacherRef{{Mode: "sat", Path: teacherDir}},
		EncLossFrac: frac,
	}
	return cfg
}

func TestBlendLoss(t *testing.T) {
	tests := []struct {
		name               string
		primary, distill   float64
		frac               float64
		want               float64
	}{
		{"frac zero is pure primary", 0.7, 3.0, 0, 0.7},
		{"positive distill keeps primary magnitude", 0.7, 3.0, 0.5, 0.7},
		{"frac one with positive distill", 0.7, 3.0, 1, 0.7},
		{"zero distill drops the distill share", 0.8, 0, 0.5, 0.4},
		{"zero distill frac one", 0.8, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, blendLoss(tt.primary, tt.distill, tt.frac), 1e-9)
		})
	}
}

func TestNewDistillationValidation(t *testing.T) {
	dir := trainTeacher(t, false)

	t.Run("missing distill section", func(t *testing.T) {
		_, err := NewDistillation(testConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("no teachers", func(t *testing.T) {
		cfg := distillConfig(dir, 0.3)
		cfg.Distill.Teachers = nil
		_, err := NewDistillation(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("bad loss fraction", func(t *testing.T) {
		cfg := distillConfig(dir, 1.5)
		_, err := NewDistillation(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("duplicate teacher mode", func(t *testing.T) {
		cfg := distillConfig(dir, 0.3)
		cfg.Distill.Teachers = append(cfg.Distill.Teachers, cfg.Distill.Teachers[0])
		_, err := NewDistillation(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("teacher mode not in student", func(t *testing.T) {
		cfg := distillConfig(dir, 0.3)
		cfg.Distill.Teachers[0].Mode = "nwp/gfs"
		_, err := NewDistillation(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("missing checkpoint", func(t *testing.T) {
		cfg := distillConfig(t.TempDir(), 0.3)
		_, err := NewDistillation(cfg, nil)
		assert.Error(t, err)
	})
}

func TestDistillationWarmStartCopiesTeacherEncoder(t *testing.T) {
	dir := trainTeacher(t, false)
	d, err := NewDistillation(distillConfig(dir, 0.3), nil)
	require.NoError(t, err)

	studentEnc, ok := d.modeEncoder("sat")
	require.True(t, ok)
	teacherEnc, ok := d.teachers[0].model.modeEncoder("sat")
	require.True(t, ok)
	assert.Equal(t, teacherEnc.Params(), studentEnc.Params())
}

func TestDistillationColdStartKeepsOwnInit(t *testing.T) {
	dir := trainTeacher(t, false)
	cfg := distillConfig(dir, 0.3)
	cfg.Distill.ColdStart = true
	d, err := NewDistillation(cfg, nil)
	require.NoError(t, err)

	studentEnc, _ := d.modeEncoder("sat")
	teacherEnc, _ := d.teachers[0].model.modeEncoder("sat")
	assert.NotEqual(t, teacherEnc.Params(), studentEnc.Params())
}

func TestDistillationTeachersStayFrozen(t *testing.T) {
	dir := trainTeacher(t, false)
	d, err := NewDistillation(distillConfig(dir, 0.5), nil)
	require.NoError(t, err)

	teacherBefore := d.teachers[0].model.Params()
	studentBefore := d.Params()

	losses, err := d.TrainingStep(testBatch(3))
	require.NoError(t, err)
	assert.Contains(t, losses, "distill")
	assert.Contains(t, losses, "opt_loss")
	assert.Contains(t, losses, "MAE")

	assert.Equal(t, teacherBefore, d.teachers[0].model.Params(),
		"teacher parameters changed during a training step")
	assert.NotEqual(t, studentBefore, d.Params())
}

func TestDistillationTeacherParamsExcluded(t *testing.T) {
	dir := trainTeacher(t, false)
	d, err := NewDistillation(distillConfig(dir, 0.5), nil)
	require.NoError(t, err)

	plain, err := NewMultimodal(testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, len(plain.Params()), len(d.Params()))
}

func TestDistillationTeacherFeatures(t *testing.T) {
	dir := trainTeacher(t, false)
	d, err := NewDistillation(distillConfig(dir, 0.5), nil)
	require.NoError(t, err)

	feats, err := d.TeacherFeatures(testBatch(3), 0)
	require.NoError(t, err)
	require.Contains(t, feats, "sat")
	assert.Len(t, feats["sat"], 8)
	assert.Equal(t, []string{"sat"}, d.Teachers())
}

func TestDistillationValBestCheckpoint(t *testing.T) {
	dir := trainTeacher(t, true)
	cfg := distillConfig(dir, 0.3)
	cfg.Distill.ValBest = true
	_, err := NewDistillation(cfg, nil)
	assert.NoError(t, err)
}

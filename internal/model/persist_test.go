package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	m, err := NewMultimodal(testConfig(), nil)
	require.NoError(t, err)
	_, err = m.TrainingStep(testBatch(5))
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, m.SaveCheckpoint(dir, 2, 0.3, false))

	loaded, err := LoadMultimodal(dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, m.Config(), loaded.Config())
	assert.Equal(t, m.Params(), loaded.Params())

	b := testBatch(6)
	want, err := m.Forward(b)
	require.NoError(t, err)
	got, err := loaded.Forward(b)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMultimodalValBestMissing(t *testing.T) {
	m, err := NewMultimodal(testConfig(), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, m.SaveCheckpoint(dir, 1, 0.5, false))

	_, err = LoadMultimodal(dir, true, nil)
	assert.Error(t, err)
}

package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSlots() []Slot {
	return []Slot{
		{Name: "sat", Width: 2},
		{Name: "pv", Width: 3},
		{Name: "sun", Width: 1},
	}
}

func threeModes() *Modes {
	m := NewModes()
	m.Add("sat", []float64{1, 2})
	m.Add("pv", []float64{3, 4, 5})
	m.Add("sun", []float64{6})
	return m
}

func TestModesOrderAndDuplicates(t *testing.T) {
	m := threeModes()
	assert.Equal(t, []string{"sat", "pv", "sun"}, m.Names())
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []float64{3, 4, 5}, m.Get("pv"))
	assert.Nil(t, m.Get("nwp/ukv"))

	assert.Panics(t, func() { m.Add("sat", []float64{9}) })
}

func TestNewAssemblerValidation(t *testing.T) {
	tests := []struct {
		name    string
		slots   []Slot
		dropout float64
	}{
		{"no slots", nil, 0},
		{"zero width", []Slot{{Name: "sat", Width: 0}}, 0},
		{"duplicate name", []Slot{{Name: "sat", Width: 2}, {Name: "sat", Width: 2}}, 0},
		{"negative dropout", threeSlots(), -0.1},
		{"dropout of one", threeSlots(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(tt.slots, tt.dropout)
			assert.Error(t, err)
		})
	}
}

func TestConcatOrderAndWidths(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0)
	require.NoError(t, err)
	assert.Equal(t, 6, a.TotalFeatures())

	fused, err := a.Concat(threeModes())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, fused)
}

func TestConcatRejectsMismatch(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0)
	require.NoError(t, err)

	t.Run("missing modality", func(t *testing.T) {
		m := NewModes()
		m.Add("sat", []float64{1, 2})
		_, err := a.Concat(m)
		assert.Error(t, err)
	})

	t.Run("wrong order", func(t *testing.T) {
		m := NewModes()
		m.Add("pv", []float64{3, 4, 5})
		m.Add("sat", []float64{1, 2})
		m.Add("sun", []float64{6})
		_, err := a.Concat(m)
		assert.Error(t, err)
	})

	t.Run("wrong width", func(t *testing.T) {
		m := NewModes()
		m.Add("sat", []float64{1})
		m.Add("pv", []float64{3, 4, 5})
		m.Add("sun", []float64{6})
		_, err := a.Concat(m)
		assert.Error(t, err)
	})
}

func TestEvalModeIsDeterministicPassThrough(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0.9)
	require.NoError(t, err)
	a.SetTraining(false)

	first, err := a.Concat(threeModes())
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		fused, err := a.Concat(threeModes())
		require.NoError(t, err)
		assert.Equal(t, first, fused)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, first)
}

func TestTrainingDropoutZeroesWholeSlots(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0.5)
	require.NoError(t, err)
	a.SetTraining(true)
	a.Seed(7)

	sawDrop, sawKeep := false, false
	for i := 0; i < 100; i++ {
		fused, err := a.Concat(threeModes())
		require.NoError(t, err)
		// The pv slot occupies positions 2..4; it is either fully
		// present or fully zeroed.
		pv := fused[2:5]
		if pv[0] == 0 && pv[1] == 0 && pv[2] == 0 {
			sawDrop = true
		} else {
			assert.Equal(t, []float64{3, 4, 5}, pv)
			sawKeep = true
		}
	}
	assert.True(t, sawDrop, "dropout never zeroed the pv slot in 100 draws")
	assert.True(t, sawKeep, "dropout zeroed the pv slot in every draw")
}

func TestSplitGradRoundTrip(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0)
	require.NoError(t, err)

	_, err = a.Concat(threeModes())
	require.NoError(t, err)

	grads, err := a.SplitGrad([]float64{10, 20, 30, 40, 50, 60})
	require.NoError(t, err)
	require.Len(t, grads, 3)
	assert.Equal(t, []float64{10, 20}, grads[0])
	assert.Equal(t, []float64{30, 40, 50}, grads[1])
	assert.Equal(t, []float64{60}, grads[2])

	_, err = a.SplitGrad([]float64{1, 2})
	assert.Error(t, err)
}

func TestSplitGradZeroesDroppedSlots(t *testing.T) {
	a, err := NewAssembler(threeSlots(), 0.99)
	require.NoError(t, err)
	a.SetTraining(true)
	a.Seed(3)

	// With dropout this close to one, all slots drop almost surely on the
	// first draw; retry a few times in case one survives.
	dropped := false
	for i := 0; i < 50 && !dropped; i++ {
		fused, err := a.Concat(threeModes())
		require.NoError(t, err)
		if fused[0] == 0 && fused[1] == 0 {
			dropped = true
		}
	}
	require.True(t, dropped, "sat slot never dropped")

	grads, err := a.SplitGrad([]float64{10, 20, 30, 40, 50, 60})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, grads[0])
}

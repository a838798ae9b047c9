package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

func step(stepType ts.StepType, label float64) ts.TimeStep {
	obs := ts.NewState([]int{1}, []float64{label})
	discount := 1.0
	if stepType == ts.Last {
		discount = 0
	}
	return ts.New(stepType, label, discount, obs, int(label))
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()

	_, ok, err := acc.Step(step(ts.First, 0), 3)
	require.NoError(t, err)
	assert.False(t, ok)

	tr, ok, err := acc.Step(step(ts.Mid, 1), 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, tr.Action)
	assert.Equal(t, 1.0, tr.Reward)
	assert.Equal(t, 1.0, tr.Discount)
	assert.Equal(t, []float64{0}, tr.StateBefore.Data())
	assert.Equal(t, []float64{1}, tr.StateAfter.Data())

	tr, ok, err = acc.Step(step(ts.Last, 2), 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, tr.Action)
	assert.Equal(t, 0.0, tr.Discount)

	// Nothing may cross the episode boundary
	_, _, err = acc.Step(step(ts.Mid, 3), 0)
	assert.ErrorIs(t, err, errExpectedFirst)

	_, ok, err = acc.Step(step(ts.First, 10), 1)
	require.NoError(t, err)
	assert.False(t, ok)
	tr, ok, err = acc.Step(step(ts.Mid, 11), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{10}, tr.StateBefore.Data())
}

func TestAccumulatorFirstRestartsEpisode(t *testing.T) {
	acc := NewAccumulator()

	_, _, err := acc.Step(step(ts.First, 0), 0)
	require.NoError(t, err)
	_, _, err = acc.Step(step(ts.Mid, 1), 0)
	require.NoError(t, err)

	// A truncated episode is followed directly by a First step
	_, ok, err := acc.Step(step(ts.First, 5), 2)
	require.NoError(t, err)
	assert.False(t, ok)

	tr, ok, err := acc.Step(step(ts.Mid, 6), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, tr.Action)
	assert.Equal(t, []float64{5}, tr.StateBefore.Data())
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator()
	_, _, err := acc.Step(step(ts.First, 0), 0)
	require.NoError(t, err)

	acc.Reset()
	_, _, err = acc.Step(step(ts.Mid, 1), 0)
	assert.Error(t, err)

	_, _, err = acc.Step(ts.TimeStep{StepType: ts.First}, 0)
	assert.Error(t, err)
}

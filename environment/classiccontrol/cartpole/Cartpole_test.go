package cartpole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

func TestBuilderIsDeterministic(t *testing.T) {
	build := NewBuilder(0, 1.0)

	run := func() []float64 {
		e, err := build(7)
		require.NoError(t, err)

		step, err := e.Reset()
		require.NoError(t, err)
		for !step.Last() && step.Number < 20 {
			step, err = e.Step(step.Number % 3)
			require.NoError(t, err)
		}
		obs, err := ts.Float64s(step.Observation)
		require.NoError(t, err)
		return obs
	}

	assert.Equal(t, run(), run())
}

func TestEpisodeEndsWhenPoleFalls(t *testing.T) {
	e, err := NewBuilder(0, 1.0)(1)
	require.NoError(t, err)

	step, err := e.Reset()
	require.NoError(t, err)
	assert.True(t, step.First())
	assert.Equal(t, []int{ObservationDims}, []int(step.Observation.Shape()))

	for i := 0; i < 1000 && !step.Last(); i++ {
		step, err = e.Step(2)
		require.NoError(t, err)
	}

	require.True(t, step.Last())
	assert.Equal(t, 0.0, step.Discount)
	assert.Equal(t, -1.0, step.Reward)

	_, err = e.Step(1)
	assert.Error(t, err)
}

func TestStepLimitTruncates(t *testing.T) {
	e, err := NewBuilder(3, 1.0)(1)
	require.NoError(t, err)

	step, err := e.Reset()
	require.NoError(t, err)
	for !step.Last() {
		step, err = e.Step(1)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, step.Number)
	assert.Equal(t, 1.0, step.Discount)
}

func TestIllegalActionPanics(t *testing.T) {
	e, err := NewBuilder(0, 1.0)(1)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)

	assert.Panics(t, func() { e.Step(3) })
}

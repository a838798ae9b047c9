package wrappers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// counter is an environment whose observation is the number of steps
// taken so far and whose episodes last a fixed number of steps
type counter struct {
	length int
	n      int
}

func (c *counter) Reset() (ts.TimeStep, error) {
	c.n = 0
	return ts.New(ts.First, 0, 1, c.obs(), 0), nil
}

func (c *counter) Step(int) (ts.TimeStep, error) {
	c.n++
	t := ts.New(ts.Mid, 1, 1, c.obs(), c.n)
	if c.n >= c.length {
		t.StepType = ts.Last
		t.Discount = 0
	}
	return t, nil
}

func (c *counter) obs() *tensor.Dense {
	return ts.NewState([]int{2}, []float64{float64(c.n), -float64(c.n)})
}

func (c *counter) ObservationSpec() env.Spec {
	return env.NewObservationSpec([]int{2}, tensor.Float64)
}

func (c *counter) ActionSpec() env.Spec {
	return env.NewDiscreteActionSpec(2)
}

func TestFrameStack(t *testing.T) {
	stack, err := NewFrameStack(&counter{length: 10}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, stack.ObservationSpec().Shape)

	step, err := stack.Reset()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, []int(step.Observation.Shape()))
	obs, err := ts.Float64s(step.Observation)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, obs)

	_, err = stack.Step(0)
	require.NoError(t, err)
	step, err = stack.Step(0)
	require.NoError(t, err)
	obs, err = ts.Float64s(step.Observation)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, -1, 2, -2}, obs)

	_, err = NewFrameStack(&counter{}, 0)
	assert.Error(t, err)
}

func TestFrameStackRequiresReset(t *testing.T) {
	stack, err := NewFrameStack(&counter{length: 10}, 2)
	require.NoError(t, err)
	_, err = stack.Step(0)
	assert.Error(t, err)
}

func TestActionRepeat(t *testing.T) {
	repeat, err := NewActionRepeat(&counter{length: 5}, 2)
	require.NoError(t, err)

	_, err = repeat.Reset()
	require.NoError(t, err)

	step, err := repeat.Step(0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, step.Reward)
	assert.Equal(t, 1.0, step.Discount)
	assert.Equal(t, 1, step.Number)

	_, err = repeat.Step(0)
	require.NoError(t, err)

	// Only one step remains in the episode
	step, err = repeat.Step(0)
	require.NoError(t, err)
	assert.True(t, step.Last())
	assert.Equal(t, 1.0, step.Reward)
	assert.Equal(t, 0.0, step.Discount)
	assert.Equal(t, 3, step.Number)
}

func TestPreprocess(t *testing.T) {
	build := Preprocess(func(uint64) (env.Environment, error) {
		return &counter{length: 100}, nil
	}, 4, 2)

	e, err := build(0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, e.ObservationSpec().Shape)

	_, err = e.Reset()
	require.NoError(t, err)
	step, err := e.Step(1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, step.Reward)
	obs, err := ts.Float64s(step.Observation)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 4, -4}, obs)
}

func TestClipRewards(t *testing.T) {
	build := ClipRewards(Preprocess(func(uint64) (env.Environment, error) {
		return &counter{length: 100}, nil
	}, 4, 1), 1.5)

	e, err := build(0)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)

	step, err := e.Step(0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, step.Reward)

	_, err = NewRewardClip(&counter{}, 0)
	assert.Error(t, err)

	unclipped := func(uint64) (env.Environment, error) {
		return &counter{length: 1}, nil
	}
	e, err = ClipRewards(unclipped, 0)(0)
	require.NoError(t, err)
	_, ok := e.(*counter)
	assert.True(t, ok)
}

package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// param is a model parameter with a fixed gradient
type param struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

func newParam(value, grad []float64) param {
	return param{
		value: tensor.New(tensor.WithShape(len(value)),
			tensor.WithBacking(append([]float64(nil), value...))),
		grad: tensor.New(tensor.WithShape(len(grad)),
			tensor.WithBacking(append([]float64(nil), grad...))),
	}
}

func (p param) Value() G.Value         { return p.value }
func (p param) Grad() (G.Value, error) { return p.grad, nil }
func (p param) weights() []float64     { return p.value.Data().([]float64) }
func (p param) model() []G.ValueGrad   { return []G.ValueGrad{p} }

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{
		"rmsprop": RMSProp,
		"Adam":    Adam,
		"VANILLA": Vanilla,
	} {
		have, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, have)
	}

	_, err := ParseType("sgd-momentum")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, typ := range []Type{Adam, RMSProp, Vanilla} {
		s, err := New(typ, 1e-3, 1e-8, 1)
		require.NoError(t, err)
		assert.Equal(t, typ, s.Type)
		assert.NotNil(t, s.Stateful)
		assert.True(t, s.ValidType(typ))
	}

	_, err := New(Adam, 0, 1e-8, 1)
	assert.Error(t, err)
	_, err = New(Adam, 1e-3, 1e-8, 0)
	assert.Error(t, err)
	_, err = New("Momentum", 1e-3, 1e-8, 1)
	assert.Error(t, err)
}

func TestNewSolverTypeMismatch(t *testing.T) {
	_, err := newSolver(Adam, VanillaConfig{StepSize: 1, Batch: 1})
	assert.Error(t, err)
}

func TestRMSPropStep(t *testing.T) {
	s, err := NewRMSProp(0.1, 0, 0.9, 1, -1)
	require.NoError(t, err)

	p := newParam([]float64{1, 1}, []float64{2, -2})
	require.NoError(t, s.Step(p.model()))

	// s = 0.1 * 2², w = 1 ∓ 0.1 * 2 / √0.4
	assert.InDeltaSlice(t, []float64{0.683772234, 1.316227766}, p.weights(),
		1e-9)
	assert.Equal(t, 1, s.State().Steps)
	assert.InDeltaSlice(t, []float64{0.4, 0.4}, s.State().Second[0], 1e-12)
	assert.Empty(t, s.State().First)
}

func TestRMSPropClip(t *testing.T) {
	s, err := NewRMSProp(0.1, 0, 0.9, 2, 0.5)
	require.NoError(t, err)

	// The gradient is scaled by the batch size then clipped to 0.5
	p := newParam([]float64{0}, []float64{4})
	require.NoError(t, s.Step(p.model()))
	assert.InDelta(t, 0.025, s.State().Second[0][0], 1e-12)
}

func TestAdamStep(t *testing.T) {
	s, err := NewAdam(0.1, 0, 0.9, 0.999, 1)
	require.NoError(t, err)

	// Bias correction makes the first step exactly α in size
	p := newParam([]float64{1}, []float64{2})
	require.NoError(t, s.Step(p.model()))
	assert.InDelta(t, 0.9, p.weights()[0], 1e-9)

	state := s.State()
	assert.Equal(t, 1, state.Steps)
	assert.InDelta(t, 0.2, state.First[0][0], 1e-12)
	assert.InDelta(t, 0.004, state.Second[0][0], 1e-12)
}

// A solver restored from the state of another continues exactly as the
// original would have
func TestResumeMatchesUninterrupted(t *testing.T) {
	step := func(s *Solver, weights, grad []float64) []float64 {
		p := newParam(weights, grad)
		require.NoError(t, s.Step(p.model()))
		return p.weights()
	}

	for _, typ := range []Type{Adam, RMSProp} {
		original, err := New(typ, 0.01, 1e-8, 1)
		require.NoError(t, err)

		weights := []float64{1, -1, 0.5}
		for i := 0; i < 3; i++ {
			weights = step(original, weights, []float64{0.3, -0.2, 0.7})
		}

		resumed, err := New(typ, 0.01, 1e-8, 1)
		require.NoError(t, err)
		require.NoError(t, resumed.SetState(original.State()), typ)

		fresh, err := New(typ, 0.01, 1e-8, 1)
		require.NoError(t, err)

		grad := []float64{-0.1, 0.4, 0.2}
		want := step(original, weights, grad)
		assert.Equal(t, want, step(resumed, weights, grad), typ)
		assert.NotEqual(t, want, step(fresh, weights, grad), typ)
	}
}

func TestStepZeroesGradients(t *testing.T) {
	s, err := NewAdam(0.1, 0, 0.9, 0.999, 1)
	require.NoError(t, err)

	p := newParam([]float64{1, 2}, []float64{3, 4})
	require.NoError(t, s.Step(p.model()))
	assert.Equal(t, []float64{0, 0}, p.grad.Data().([]float64))
}

func TestStateIsCopied(t *testing.T) {
	s, err := NewRMSProp(0.1, 0, 0.9, 1, -1)
	require.NoError(t, err)
	p := newParam([]float64{1}, []float64{1})
	require.NoError(t, s.Step(p.model()))

	state := s.State()
	state.Second[0][0] = 100
	assert.NotEqual(t, 100.0, s.State().Second[0][0])

	require.NoError(t, s.SetState(state))
	state.Second[0][0] = 5
	assert.Equal(t, 100.0, s.State().Second[0][0])
}

func TestSetStateInvalid(t *testing.T) {
	rmsprop, err := NewRMSProp(0.1, 0, 0.9, 1, -1)
	require.NoError(t, err)
	assert.Error(t, rmsprop.SetState(State{First: [][]float64{{1}},
		Second: [][]float64{{1}}}))
	assert.Error(t, rmsprop.SetState(State{Steps: -1}))

	adam, err := NewAdam(0.1, 0, 0.9, 0.999, 1)
	require.NoError(t, err)
	assert.Error(t, adam.SetState(State{Second: [][]float64{{1}}}))

	vanilla, err := NewVanilla(0.1, 1, -1)
	require.NoError(t, err)
	assert.Error(t, vanilla.SetState(State{Steps: 2}))
	assert.NoError(t, vanilla.SetState(State{}))

	// Statistics which do not match the model are rejected at the next
	// step
	require.NoError(t, rmsprop.SetState(State{Second: [][]float64{{1, 1}}}))
	p := newParam([]float64{1}, []float64{1})
	assert.Error(t, rmsprop.Step(p.model()))
	assert.Equal(t, 1.0, p.weights()[0])
}

func TestStateValidate(t *testing.T) {
	assert.NoError(t, State{}.Validate(3, 4))
	assert.NoError(t, State{Second: [][]float64{{0, 0}}}.Validate(2))
	assert.Error(t, State{Second: [][]float64{{0, 0}}}.Validate(3))
	assert.Error(t, State{Second: [][]float64{{0}}}.Validate(1, 1))
	assert.Error(t, State{First: [][]float64{{0}}}.Validate())
}

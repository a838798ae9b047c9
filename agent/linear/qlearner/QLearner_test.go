package qlearner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/solver"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

func newLearner(t *testing.T, features, actions, batch int,
	discount float64) *Learner {
	t.Helper()

	s, err := solver.New(solver.Vanilla, 0.1, 1e-8, 1)
	require.NoError(t, err)

	l, err := New(Config{
		Features:   features,
		NumActions: actions,
		BatchSize:  batch,
		Discount:   discount,
		Solver:     s,
	})
	require.NoError(t, err)
	return l
}

func batchOf(states, nextStates [][]float64, actions []int,
	rewards, discounts []float64) agent.Batch {
	var transitions []ts.Transition
	for i := range states {
		transitions = append(transitions, ts.Transition{
			StateBefore: ts.NewState([]int{len(states[i])}, states[i]),
			Action:      actions[i],
			Reward:      rewards[i],
			Discount:    discounts[i],
			StateAfter:  ts.NewState([]int{len(nextStates[i])}, nextStates[i]),
		})
	}

	weights := make([]float64, len(states))
	for i := range weights {
		weights[i] = 1.0
	}
	b, err := agent.NewBatch(transitions, weights)
	if err != nil {
		panic(err)
	}
	return b
}

func TestActionValues(t *testing.T) {
	l := newLearner(t, 2, 3, 2, 0.99)

	weights := mat.NewDense(3, 3, []float64{
		1, 0, 2,
		0, 1, 0,
		0.5, 0.5, 0.5,
	})
	values, err := l.ActionValues(agent.Params{WeightsKey: weights},
		ts.NewState([]int{2}, []float64{2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 3.5, 4.5}, values)

	_, err = l.ActionValues(agent.Params{WeightsKey: weights},
		ts.NewState([]int{3}, []float64{2, 3, 4}))
	assert.Error(t, err)

	_, err = l.ActionValues(agent.Params{}, ts.NewState([]int{2},
		[]float64{2, 3}))
	assert.Error(t, err)
}

func TestInitialParams(t *testing.T) {
	l := newLearner(t, 4, 2, 2, 0.99)
	p := l.InitialParams()

	r, c := p[WeightsKey].Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.0, mat.Sum(p[WeightsKey]))

	s, err := solver.New(solver.Vanilla, 0.1, 1e-8, 1)
	require.NoError(t, err)
	random, err := New(Config{Features: 4, NumActions: 2, BatchSize: 2,
		Discount: 0.9, Solver: s, InitStdDev: 0.1, Seed: 3})
	require.NoError(t, err)
	assert.True(t, mat.Equal(random.InitialParams()[WeightsKey],
		random.InitialParams()[WeightsKey]))
	assert.NotEqual(t, 0.0, mat.Sum(random.InitialParams()[WeightsKey]))
}

func TestUpdateDoubleQTargets(t *testing.T) {
	l := newLearner(t, 1, 2, 2, 0.5)

	// Q_online(s) = [s, 2] and Q_target(s) = [5s, 7s]
	online := agent.Params{WeightsKey: mat.NewDense(2, 2, []float64{
		1, 0,
		0, 2,
	})}
	target := agent.Params{WeightsKey: mat.NewDense(2, 2, []float64{
		5, 7,
		0, 0,
	})}

	b := batchOf(
		[][]float64{{1}, {1}},
		[][]float64{{1}, {1}},
		[]int{0, 1},
		[]float64{1, 1},
		[]float64{1, 1},
	)

	newParams, metrics, err := l.Update(online, target, b, nil)
	require.NoError(t, err)

	// The online weights choose action 1 in the next state, whose
	// target value is 7, so both targets are 1 + 0.5 * 7 = 4.5
	require.Len(t, metrics.TDErrors, 2)
	assert.InDelta(t, 3.5, metrics.TDErrors[0], 1e-9)
	assert.InDelta(t, 2.5, metrics.TDErrors[1], 1e-9)
	assert.InDelta(t, (3.5*3.5+2.5*2.5)/2, metrics.Loss, 1e-9)

	// The input parameters are left untouched
	assert.Equal(t, []float64{1, 0, 0, 2}, online[WeightsKey].RawMatrix().Data)
	assert.False(t, mat.Equal(online[WeightsKey], newParams[WeightsKey]))
}

func TestUpdateReducesLoss(t *testing.T) {
	l := newLearner(t, 2, 2, 4, 0.9)

	b := batchOf(
		[][]float64{{1, 0}, {0, 1}, {1, 1}, {0.5, 0}},
		[][]float64{{0, 1}, {1, 1}, {0.5, 0}, {1, 0}},
		[]int{0, 1, 1, 0},
		[]float64{1, -1, 0.5, 2},
		[]float64{0, 0, 0, 0},
	)

	params := l.InitialParams()
	_, first, err := l.Update(params, params, b, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, -1, 0.5, 2}, first.TDErrors, 1e-9)

	var last agent.Metrics
	for i := 0; i < 200; i++ {
		params, last, err = l.Update(params, params, b, nil)
		require.NoError(t, err)
	}
	assert.Less(t, last.Loss, first.Loss)
}

func newRMSPropLearner(t *testing.T) *Learner {
	t.Helper()

	s, err := solver.NewRMSProp(0.01, 1e-2, 0.95, 1, 1.0/32)
	require.NoError(t, err)
	l, err := New(Config{
		Features:   2,
		NumActions: 2,
		BatchSize:  2,
		Discount:   0.9,
		Solver:     s,
	})
	require.NoError(t, err)
	return l
}

// A learner given the parameters and solver state of another continues
// exactly as the other would have
func TestSolverStateResume(t *testing.T) {
	b := batchOf(
		[][]float64{{1, 0}, {0, 1}},
		[][]float64{{0, 1}, {1, 1}},
		[]int{0, 1},
		[]float64{1, -1},
		[]float64{1, 1},
	)

	original := newRMSPropLearner(t)
	params := original.InitialParams()
	var err error
	for i := 0; i < 3; i++ {
		params, _, err = original.Update(params, params, b, nil)
		require.NoError(t, err)
	}
	state := original.SolverState()
	assert.Equal(t, 3, state.Steps)

	resumed := newRMSPropLearner(t)
	require.NoError(t, resumed.SetSolverState(state))
	fresh := newRMSPropLearner(t)

	want, _, err := original.Update(params, params, b, nil)
	require.NoError(t, err)
	have, _, err := resumed.Update(params, params, b, nil)
	require.NoError(t, err)
	assert.Equal(t, want[WeightsKey].RawMatrix().Data,
		have[WeightsKey].RawMatrix().Data)

	restarted, _, err := fresh.Update(params, params, b, nil)
	require.NoError(t, err)
	assert.NotEqual(t, want[WeightsKey].RawMatrix().Data,
		restarted[WeightsKey].RawMatrix().Data)
}

func TestSetSolverStateShape(t *testing.T) {
	l := newRMSPropLearner(t)

	// Weights have (2 features + bias) × 2 actions elements
	assert.NoError(t, l.SetSolverState(solver.State{
		Second: [][]float64{make([]float64, 6)}}))
	assert.Error(t, l.SetSolverState(solver.State{
		Second: [][]float64{make([]float64, 4)}}))
	assert.Equal(t, 6, len(l.SolverState().Second[0]))
}

func TestUpdateBatchSizeMismatch(t *testing.T) {
	l := newLearner(t, 1, 2, 3, 0.9)
	b := batchOf([][]float64{{1}, {2}}, [][]float64{{1}, {2}}, []int{0, 1},
		[]float64{0, 0}, []float64{1, 1})

	p := l.InitialParams()
	_, _, err := l.Update(p, p, b, nil)
	assert.Error(t, err)
}

func TestTargetUpdateCopies(t *testing.T) {
	l := newLearner(t, 1, 2, 2, 0.9)
	online := agent.Params{WeightsKey: mat.NewDense(2, 2, []float64{1, 2, 3, 4})}

	target := l.TargetUpdate(online)
	online[WeightsKey].Set(0, 0, 100)
	assert.Equal(t, 1.0, target[WeightsKey].At(0, 0))
}

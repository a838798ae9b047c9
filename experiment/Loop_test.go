package experiment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/agent/linear/qlearner"
	env "github.com/samuelfneumann/expdqn/environment"
	"github.com/samuelfneumann/expdqn/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/expdqn/environment/wrappers"
	"github.com/samuelfneumann/expdqn/experiment/checkpointer"
	"github.com/samuelfneumann/expdqn/expreplay"
	"github.com/samuelfneumann/expdqn/results"
	"github.com/samuelfneumann/expdqn/schedule"
	"github.com/samuelfneumann/expdqn/solver"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

const (
	repeats  = 2
	stack    = 2
	features = stack * cartpole.ObservationDims
)

// linearLearner is a small semi-gradient Q-learning learner with a
// linear action value function
type linearLearner struct{}

func (linearLearner) InitialParams() agent.Params {
	return agent.Params{"w": mat.NewDense(features, cartpole.NumActions, nil)}
}

func (linearLearner) values(p agent.Params, s []float64) []float64 {
	out := mat.NewVecDense(cartpole.NumActions, nil)
	out.MulVec(p["w"].T(), mat.NewVecDense(len(s), s))
	return out.RawVector().Data
}

func (l linearLearner) ActionValues(p agent.Params,
	s *tensor.Dense) ([]float64, error) {
	data, err := ts.Float64s(s)
	if err != nil {
		return nil, err
	}
	if len(data) != features {
		return nil, fmt.Errorf("have %v features, want %v", len(data),
			features)
	}
	return l.values(p, data), nil
}

func (l linearLearner) Update(online, target agent.Params, b agent.Batch,
	_ *rand.Rand) (agent.Params, agent.Metrics, error) {
	states := b.States.Data().([]float64)
	nextStates := b.NextStates.Data().([]float64)
	next := agent.CopyParams(online)
	w := next["w"]

	metrics := agent.Metrics{TDErrors: make([]float64, b.Size())}
	for i := 0; i < b.Size(); i++ {
		s := states[i*features : (i+1)*features]
		sNext := nextStates[i*features : (i+1)*features]

		targetValues := l.values(target, sNext)
		td := b.Rewards[i] + b.Discounts[i]*mat.Max(
			mat.NewVecDense(len(targetValues), targetValues)) -
			l.values(online, s)[b.Actions[i]]

		metrics.TDErrors[i] = td
		metrics.Loss += b.Weights[i] * td * td / float64(b.Size())
		for j, x := range s {
			w.Set(j, b.Actions[i], w.At(j, b.Actions[i])+0.01*b.Weights[i]*td*x)
		}
	}
	return next, metrics, nil
}

func (linearLearner) TargetUpdate(online agent.Params) agent.Params {
	return agent.CopyParams(online)
}

func testConfig(iterations int) LoopConfig {
	return LoopConfig{
		NumIterations:       iterations,
		NumTrainFrames:      60,
		NumEvalFrames:       20,
		NumActionRepeats:    repeats,
		MaxFramesPerEpisode: 40,
		EvalFreq:            1,
		SaveFreq:            1,
		ObservationShape:    []int{stack, cartpole.ObservationDims},
		Seed:                7,
	}
}

func testBuilder() env.Builder {
	return wrappers.Preprocess(cartpole.NewBuilder(0, 1), repeats, stack)
}

func newAgents(t *testing.T, learner agent.Learner) (*agent.Train,
	*agent.Eval) {
	t.Helper()

	replay, err := expreplay.NewTransitionReplay(expreplay.Config{
		Capacity:                   50,
		UniformSampleProbability:   0.1,
		NormalizeWeights:           true,
		ImportanceSamplingExponent: 1,
	}, schedule.Constant(1), expreplay.Snappy{})
	require.NoError(t, err)

	exploration, err := schedule.NewLinear(0, 100, 1, 0.1)
	require.NoError(t, err)

	train, err := agent.NewTrain(agent.TrainConfig{
		NumActions:         cartpole.NumActions,
		BatchSize:          4,
		LearnPeriod:        2,
		TargetUpdatePeriod: 10,
		MinReplaySize:      8,
		NumActionRepeats:   repeats,
	}, learner, replay, exploration, 1)
	require.NoError(t, err)

	eval, err := agent.NewEval(learner, cartpole.NumActions, 0.05, 2)
	require.NoError(t, err)

	return train, eval
}

func fixedClock() time.Time {
	return time.Unix(0, 0)
}

// newQLearner returns a linear double Q-learner trained with RMSProp
func newQLearner(t *testing.T) *qlearner.Learner {
	t.Helper()

	s, err := solver.NewRMSProp(0.01, 0.01, 0.95, 1, 1.0/32)
	require.NoError(t, err)
	l, err := qlearner.New(qlearner.Config{
		Features:   features,
		NumActions: cartpole.NumActions,
		BatchSize:  4,
		Discount:   0.99,
		Solver:     s,
		InitStdDev: 0.01,
		Seed:       3,
	})
	require.NoError(t, err)
	return l
}

func newLoop(t *testing.T, config LoopConfig, w results.Writer,
	ckpt checkpointer.Checkpointer) (*Loop, *agent.Train) {
	t.Helper()
	return newLoopWith(t, config, w, ckpt, linearLearner{})
}

func newLoopWith(t *testing.T, config LoopConfig, w results.Writer,
	ckpt checkpointer.Checkpointer, learner agent.Learner) (*Loop,
	*agent.Train) {
	t.Helper()

	train, eval := newAgents(t, learner)
	l, err := NewLoop(config, testBuilder(), train, eval, w, ckpt,
		WithClock(fixedClock))
	require.NoError(t, err)
	return l, train
}

// recorder records the rows written to it
type recorder struct {
	rows   []results.Row
	closed bool
	onRow  func()
}

func (r *recorder) Write(row results.Row) error {
	r.rows = append(r.rows, row)
	if r.onRow != nil {
		r.onRow()
	}
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

// countingCheckpointer counts saves and keeps the last state in memory
type countingCheckpointer struct {
	saves int
	state State
}

func (c *countingCheckpointer) Save(state interface{}) error {
	c.saves++
	c.state = state.(State)
	return nil
}

func (c *countingCheckpointer) Restore(into interface{}) error {
	return checkpointer.ErrNothingToRestore
}

func (c *countingCheckpointer) CanBeRestored() bool {
	return false
}

func TestLoopRun(t *testing.T) {
	w := &recorder{}
	ckpt := &countingCheckpointer{}
	l, train := newLoop(t, testConfig(2), w, ckpt)
	assert.Equal(t, Initializing, l.Phase())

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, Done, l.Phase())
	assert.True(t, w.closed)
	assert.True(t, l.Finished())
	assert.Equal(t, 3, l.Iteration())

	// One save per iteration and a final save
	assert.Equal(t, 4, ckpt.saves)
	assert.Equal(t, 3, ckpt.state.Iteration)

	require.Len(t, w.rows, 3)
	assert.Equal(t, []string{
		"iteration", "frame", "eval_episode_return", "train_episode_return",
		"eval_num_episodes", "train_num_episodes", "eval_frame_rate",
		"train_frame_rate", "train_exploration_epsilon", "train_state_value",
		"importance_sampling_exponent", "max_seen_priority",
		"sampling_temperature", "replay_size",
	}, w.rows[0].Names())

	for i, row := range w.rows {
		iteration, _ := row.Get("iteration")
		frame, _ := row.Get("frame")
		assert.Equal(t, float64(i), iteration)
		assert.Equal(t, float64(i*60), frame)
	}

	// The training agent does not act on iteration 0
	replaySize, _ := w.rows[0].Get("replay_size")
	assert.Equal(t, 0.0, replaySize)
	epsilon, _ := w.rows[0].Get("train_exploration_epsilon")
	assert.Equal(t, 1.0, epsilon)

	// Each later iteration takes 60 frames / 2 repeats agent steps
	assert.Equal(t, int64(60), train.Actions())

	assert.Error(t, func() error {
		_, err := l.RunIteration()
		return err
	}())
}

func TestLoopShapeMismatch(t *testing.T) {
	config := testConfig(1)
	config.ObservationShape = []int{cartpole.ObservationDims}

	train, eval := newAgents(t, linearLearner{})
	_, err := NewLoop(config, testBuilder(), train, eval, nil, nil)
	require.Error(t, err)
	assert.True(t, env.IsShapeMismatch(err))
}

func TestLoopInvalidConfig(t *testing.T) {
	train, eval := newAgents(t, linearLearner{})

	config := testConfig(1)
	config.SaveFreq = 0
	_, err := NewLoop(config, testBuilder(), train, eval, nil, nil)
	assert.Error(t, err)

	_, err = NewLoop(testConfig(1), nil, train, eval, nil, nil)
	assert.Error(t, err)
}

func TestLoopEvalStatsCarryOver(t *testing.T) {
	config := testConfig(3)
	config.EvalFreq = 2
	w := &recorder{}
	l, _ := newLoop(t, config, w, nil)

	require.NoError(t, l.Run(context.Background()))
	require.Len(t, w.rows, 4)

	for _, name := range []string{"eval_episode_return", "eval_num_episodes"} {
		evaluated, _ := w.rows[2].Get(name)
		carried, _ := w.rows[3].Get(name)
		assert.Equal(t, evaluated, carried, name)
	}
}

func TestLoopCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recorder{}
	l, _ := newLoop(t, testConfig(3), w, nil)
	err := l.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, l.Iteration())
	assert.Empty(t, w.rows)
	assert.False(t, w.closed)

	// Cancelling during an iteration stops at the next boundary
	ctx, cancel = context.WithCancel(context.Background())
	w = &recorder{onRow: cancel}
	l, _ = newLoop(t, testConfig(3), w, nil)
	err = l.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, l.Iteration())
	assert.Len(t, w.rows, 1)
}

func TestLoopCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	config := testConfig(4)

	ckpt, err := checkpointer.NewFile(dir, "loop")
	require.NoError(t, err)
	original, originalTrain := newLoop(t, config, nil, ckpt)

	for i := 0; i < 2; i++ {
		_, err := original.RunIteration()
		require.NoError(t, err)
	}
	require.True(t, ckpt.CanBeRestored())

	ckpt, err = checkpointer.NewFile(dir, "loop")
	require.NoError(t, err)
	restored, restoredTrain := newLoop(t, config, nil, ckpt)
	assert.Equal(t, 2, restored.Iteration())

	originalState, err := originalTrain.Snapshot()
	require.NoError(t, err)
	restoredState, err := restoredTrain.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, originalState.Replay, restoredState.Replay)
	assert.Equal(t, originalState.Actions, restoredState.Actions)
	assert.Equal(t, originalState.RNG, restoredState.RNG)

	// The next iteration proceeds identically
	originalRow, err := original.RunIteration()
	require.NoError(t, err)
	restoredRow, err := restored.RunIteration()
	require.NoError(t, err)
	assert.Equal(t, originalRow, restoredRow)

	// And so do the next actions
	e, err := testBuilder()(99)
	require.NoError(t, err)
	step, err := e.Reset()
	require.NoError(t, err)
	for i := 0; i < 20 && !step.Last(); i++ {
		originalAction, err := originalTrain.Step(step)
		require.NoError(t, err)
		restoredAction, err := restoredTrain.Step(step)
		require.NoError(t, err)
		require.Equal(t, originalAction, restoredAction, "step %v", i)

		step, err = e.Step(originalAction)
		require.NoError(t, err)
	}
}

// A resumed run continues exactly as an uninterrupted one, including
// the running statistics of the learner's solver
func TestLoopCheckpointRoundTripWithSolverState(t *testing.T) {
	dir := t.TempDir()
	config := testConfig(4)

	ckpt, err := checkpointer.NewFile(dir, "loop")
	require.NoError(t, err)
	original, originalTrain := newLoopWith(t, config, nil, ckpt,
		newQLearner(t))

	for i := 0; i < 2; i++ {
		_, err := original.RunIteration()
		require.NoError(t, err)
	}

	originalState, err := originalTrain.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, originalState.Solver.Second, "no learning happened")
	require.Positive(t, originalState.Solver.Steps)

	ckpt, err = checkpointer.NewFile(dir, "loop")
	require.NoError(t, err)
	restored, restoredTrain := newLoopWith(t, config, nil, ckpt,
		newQLearner(t))

	restoredState, err := restoredTrain.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, originalState.Solver, restoredState.Solver)
	assert.Equal(t, originalState.Online, restoredState.Online)

	originalRow, err := original.RunIteration()
	require.NoError(t, err)
	restoredRow, err := restored.RunIteration()
	require.NoError(t, err)
	assert.Equal(t, originalRow, restoredRow)
	assert.Equal(t, originalTrain.OnlineParams(), restoredTrain.OnlineParams())
}

func TestLoopRestoresWriter(t *testing.T) {
	dir := t.TempDir()
	config := testConfig(3)
	config.SaveFreq = 2

	csv, err := results.NewCSV(dir + "/results.csv")
	require.NoError(t, err)
	ckpt, err := checkpointer.NewFile(dir, "loop")
	require.NoError(t, err)

	// Iterations 0 and 1 are saved, iteration 2 is lost
	l, _ := newLoop(t, config, csv, ckpt)
	for i := 0; i < 3; i++ {
		_, err := l.RunIteration()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, csv.State().RowsWritten)

	csv, err = results.NewCSV(dir + "/results.csv")
	require.NoError(t, err)
	l, _ = newLoop(t, config, csv, ckpt)
	assert.Equal(t, 2, l.Iteration())
	assert.Equal(t, 2, csv.State().RowsWritten)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "training", Training.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

// Package qlearner implements a double Q-learning Learner which
// approximates action values linearly in the flattened state.
package qlearner

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/solver"
	ts "github.com/samuelfneumann/expdqn/timestep"
	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

const (
	// Keys for the weights map: map[string]*mat.Dense
	WeightsKey string = "weights"
)

// Config implements a configuration of a Learner
type Config struct {
	// Features is the number of elements in a state
	Features   int
	NumActions int
	BatchSize  int

	// Discount is applied on top of the discount of each transition
	Discount float64

	Solver *solver.Solver

	// Initial weights are drawn from N(0, InitStdDev²). Zero initial
	// weights are used if InitStdDev is 0.
	InitStdDev float64
	Seed       uint64
}

// Validate checks a Config for errors
func (c Config) Validate() error {
	if c.Features < 1 {
		return fmt.Errorf("validate: need at least one feature, have %v",
			c.Features)
	}
	if c.NumActions < 1 {
		return fmt.Errorf("validate: need at least one action, have %v",
			c.NumActions)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be >= 1, have %v",
			c.BatchSize)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], have %v",
			c.Discount)
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: nil solver")
	}
	if c.InitStdDev < 0 {
		return fmt.Errorf("validate: initial weight standard deviation "+
			"must be non-negative, have %v", c.InitStdDev)
	}
	return nil
}

// Learner implements the agent.Learner interface with a linear action
// value function Q(s, a) = [s, 1]ᵀ W[:, a].
//
// Updates minimize the importance-weighted squared double Q-learning
// TD error
//
//	δ = r + γ d Q_target(s', argmax_a Q_online(s', a)) - Q_online(s, a)
//
// using a Gorgonia computational graph and solver. The Learner holds no
// parameters between calls, but the solver carries running gradient
// statistics from one update to the next. These are exposed through
// SolverState and SetSolverState for checkpointing.
type Learner struct {
	config   Config
	features int // including the bias unit

	graph     *G.ExprGraph
	states    *G.Node
	actions   *G.Node
	targets   *G.Node
	isWeights *G.Node
	weights   *G.Node
	tdErrors  *G.Node
	loss      *G.Node

	tdErrorsVal G.Value
	lossVal     G.Value
	vm          G.VM
}

// New returns a new Learner
func New(c Config) (*Learner, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	features := c.Features + 1
	batch := c.BatchSize

	g := G.NewGraph()
	states := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("states"), G.WithInit(G.Zeroes()))
	actions := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, c.NumActions),
		G.WithName("actionSelected"), G.WithInit(G.Zeroes()))
	targets := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("targets"), G.WithInit(G.Zeroes()))
	isWeights := G.NewVector(g, tensor.Float64, G.WithShape(batch),
		G.WithName("importanceSamplingWeights"), G.WithInit(G.Zeroes()))
	weights := G.NewMatrix(g, tensor.Float64,
		G.WithShape(features, c.NumActions), G.WithName("weights"),
		G.WithInit(G.Zeroes()))

	// Compute the action values of the actions taken
	prediction := G.Must(G.Mul(states, weights))
	selected := G.Must(G.HadamardProd(prediction, actions))
	selected = G.Must(G.Sum(selected, 1))

	// Compute the importance-weighted mean squared TD error
	tdErrors := G.Must(G.Sub(targets, selected))
	loss := G.Must(G.Square(tdErrors))
	loss = G.Must(G.HadamardProd(loss, isWeights))
	loss = G.Must(G.Mean(loss))

	if _, err := G.Grad(loss, weights); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	l := &Learner{
		config:    c,
		features:  features,
		graph:     g,
		states:    states,
		actions:   actions,
		targets:   targets,
		isWeights: isWeights,
		weights:   weights,
		tdErrors:  tdErrors,
		loss:      loss,
	}
	G.Read(tdErrors, &l.tdErrorsVal)
	G.Read(loss, &l.lossVal)

	l.vm = G.NewTapeMachine(g, G.BindDualValues(weights))

	return l, nil
}

// InitialParams returns the parameters to start learning from. Each
// call returns the same parameters.
func (l *Learner) InitialParams() agent.Params {
	weights := mat.NewDense(l.features, l.config.NumActions, nil)

	if l.config.InitStdDev > 0 {
		dist := distuv.Normal{
			Mu:    0,
			Sigma: l.config.InitStdDev,
			Src:   rand.NewSource(l.config.Seed),
		}
		r, c := weights.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				weights.Set(i, j, dist.Rand())
			}
		}
	}

	return agent.Params{WeightsKey: weights}
}

// ActionValues returns the value of each action in a state
func (l *Learner) ActionValues(p agent.Params, s *tensor.Dense) ([]float64,
	error) {
	weights, err := l.weightsOf(p)
	if err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}

	state, err := ts.Float64s(s)
	if err != nil {
		return nil, fmt.Errorf("actionValues: %v", err)
	}
	if len(state) != l.config.Features {
		return nil, fmt.Errorf("actionValues: state has %v features, want "+
			"%v", len(state), l.config.Features)
	}

	features := mat.NewVecDense(l.features, append(state, 1.0))
	actionValues := mat.NewVecDense(l.config.NumActions, nil)
	actionValues.MulVec(weights.T(), features)

	return actionValues.RawVector().Data, nil
}

// Update performs one solver step on a batch of transitions and
// returns the new online parameters along with the TD error of each
// transition
func (l *Learner) Update(online, target agent.Params, b agent.Batch,
	_ *rand.Rand) (agent.Params, agent.Metrics, error) {
	if b.Size() != l.config.BatchSize {
		return nil, agent.Metrics{}, fmt.Errorf("update: batch size %v, "+
			"want %v", b.Size(), l.config.BatchSize)
	}

	onlineWeights, err := l.weightsOf(online)
	if err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: online: %v", err)
	}
	targetWeights, err := l.weightsOf(target)
	if err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: target: %v", err)
	}

	states, err := l.withBias(b.States)
	if err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: states: %v", err)
	}
	nextStates, err := l.withBias(b.NextStates)
	if err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: next states: %v",
			err)
	}

	targets := l.doubleQTargets(onlineWeights, targetWeights, nextStates, b)

	// One-hot encode the actions taken
	actions := make([]float64, b.Size()*l.config.NumActions)
	for i, a := range b.Actions {
		if a < 0 || a >= l.config.NumActions {
			return nil, agent.Metrics{}, fmt.Errorf("update: illegal "+
				"action %v", a)
		}
		actions[i*l.config.NumActions+a] = 1.0
	}

	// Load the online weights into the graph
	weightsVal := l.weights.Value().(*tensor.Dense)
	copy(weightsVal.Data().([]float64), mat.DenseCopyOf(onlineWeights).
		RawMatrix().Data)

	inputs := []struct {
		node  *G.Node
		value *tensor.Dense
	}{
		{l.states, tensor.New(tensor.WithShape(b.Size(), l.features),
			tensor.WithBacking(states.RawMatrix().Data))},
		{l.actions, tensor.New(tensor.WithShape(b.Size(),
			l.config.NumActions), tensor.WithBacking(actions))},
		{l.targets, tensor.New(tensor.WithShape(b.Size()),
			tensor.WithBacking(targets))},
		{l.isWeights, tensor.New(tensor.WithShape(b.Size()),
			tensor.WithBacking(append([]float64(nil), b.Weights...)))},
	}
	for _, input := range inputs {
		if err := G.Let(input.node, input.value); err != nil {
			return nil, agent.Metrics{}, fmt.Errorf("update: could not "+
				"set %v: %v", input.node.Name(), err)
		}
	}

	defer l.vm.Reset()
	if err := l.vm.RunAll(); err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: %v", err)
	}
	if err := l.config.Solver.Step(G.NodesToValueGrads(
		G.Nodes{l.weights})); err != nil {
		return nil, agent.Metrics{}, fmt.Errorf("update: %v", err)
	}

	tdErrors := append([]float64(nil),
		l.tdErrorsVal.Data().([]float64)...)
	loss := l.lossVal.Data().(float64)

	weightsVal = l.weights.Value().(*tensor.Dense)
	newWeights := mat.NewDense(l.features, l.config.NumActions,
		append([]float64(nil), weightsVal.Data().([]float64)...))

	return agent.Params{WeightsKey: newWeights},
		agent.Metrics{Loss: loss, TDErrors: tdErrors}, nil
}

// SolverState returns the running statistics of the Learner's solver
func (l *Learner) SolverState() solver.State {
	return l.config.Solver.State()
}

// SetSolverState replaces the running statistics of the Learner's
// solver
func (l *Learner) SetSolverState(state solver.State) error {
	if err := state.Validate(l.features * l.config.NumActions); err != nil {
		return fmt.Errorf("setSolverState: %v", err)
	}
	if err := l.config.Solver.SetState(state); err != nil {
		return fmt.Errorf("setSolverState: %v", err)
	}
	return nil
}

// TargetUpdate returns a hard copy of the online parameters
func (l *Learner) TargetUpdate(online agent.Params) agent.Params {
	return agent.CopyParams(online)
}

// doubleQTargets computes the update target of each transition in a
// batch, selecting the next action with the online weights and
// evaluating it with the target weights
func (l *Learner) doubleQTargets(online, target mat.Matrix,
	nextStates *mat.Dense, b agent.Batch) []float64 {
	var onlineValues, targetValues mat.Dense
	onlineValues.Mul(nextStates, online)
	targetValues.Mul(nextStates, target)

	targets := make([]float64, b.Size())
	for i := range targets {
		_, greedy := floatutils.MaxSlice(onlineValues.RawRowView(i))
		nextValue := targetValues.At(i, greedy[0])
		targets[i] = b.Rewards[i] + l.config.Discount*b.Discounts[i]*nextValue
	}
	return targets
}

// withBias returns a batch of states with a bias unit appended to
// each state
func (l *Learner) withBias(states *tensor.Dense) (*mat.Dense, error) {
	data, err := ts.Float64s(states)
	if err != nil {
		return nil, err
	}

	rows := len(data) / l.config.Features
	if rows*l.config.Features != len(data) || rows != l.config.BatchSize {
		return nil, fmt.Errorf("have %v elements, want %v states of %v "+
			"features", len(data), l.config.BatchSize, l.config.Features)
	}

	out := mat.NewDense(rows, l.features, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		copy(row, data[i*l.config.Features:(i+1)*l.config.Features])
		row[l.config.Features] = 1.0
	}
	return out, nil
}

// weightsOf returns the weights in a set of parameters, checking that
// they have the correct shape
func (l *Learner) weightsOf(p agent.Params) (*mat.Dense, error) {
	weights, ok := p[WeightsKey]
	if !ok || weights == nil {
		return nil, fmt.Errorf("no weights named %q", WeightsKey)
	}

	r, c := weights.Dims()
	if r != l.features || c != l.config.NumActions {
		return nil, fmt.Errorf("weights have shape (%v, %v), want (%v, %v)",
			r, c, l.features, l.config.NumActions)
	}
	return weights, nil
}

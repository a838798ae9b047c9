// Package agent implements ε-greedy deep Q-learning agents which learn
// from a temperature-weighted experience replay buffer.
//
// The computation of action values and the update of parameters is
// delegated to a Learner. Agents own the remaining bookkeeping:
// selecting actions, building transitions, filling the replay buffer,
// and deciding when to learn and when to synchronize the target
// parameters.
package agent

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/expdqn/solver"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Agent consumes TimeSteps and selects actions
type Agent interface {
	// Step observes a TimeStep and returns the action to take in it
	Step(t ts.TimeStep) (int, error)

	// Reset prepares the Agent for a new environment
	Reset()

	// Statistics returns statistics about the Agent's recent behaviour
	Statistics() Statistics
}

// Statistics are statistics about an Agent's recent behaviour
type Statistics struct {
	// StateValue is the largest action value at the most recent
	// decision
	StateValue float64
}

// Params are the parameters of a Learner, keyed by name
type Params map[string]*mat.Dense

// CopyParams returns a deep copy of a set of parameters
func CopyParams(p Params) Params {
	if p == nil {
		return nil
	}

	out := make(Params, len(p))
	for name, weights := range p {
		out[name] = mat.DenseCopyOf(weights)
	}
	return out
}

// Batch is a batch of transitions prepared for a Learner. States and
// NextStates are float64 tensors of shape (batch size, features) with
// each row holding one flattened state.
type Batch struct {
	States     *tensor.Dense
	Actions    []int
	Rewards    []float64
	Discounts  []float64
	NextStates *tensor.Dense
	Weights    []float64
}

// Size returns the number of transitions in the Batch
func (b Batch) Size() int {
	return len(b.Actions)
}

// Metrics are the results of a learning step
type Metrics struct {
	Loss     float64
	TDErrors []float64
}

// Learner computes action values and learns parameters from batches of
// transitions. A Learner holds no parameters itself: parameters are
// passed into and returned from each call.
type Learner interface {
	// InitialParams returns the parameters to start learning from
	InitialParams() Params

	// ActionValues returns the value of each action in a state
	ActionValues(p Params, s *tensor.Dense) ([]float64, error)

	// Update performs one learning step on a batch of transitions,
	// weighting the loss of each transition by its importance sampling
	// weight. The new online parameters are returned along with the
	// TD error of each transition.
	Update(online, target Params, b Batch, rng *rand.Rand) (Params,
		Metrics, error)

	// TargetUpdate returns the target parameters to use after
	// synchronizing with the online parameters
	TargetUpdate(online Params) Params
}

// StatefulLearner is a Learner whose solver carries statistics from one
// update to the next. The statistics are checkpointed with the Train
// agent.
type StatefulLearner interface {
	Learner
	SolverState() solver.State
	SetSolverState(solver.State) error
}

// NewBatch flattens a sampled set of transitions into a Batch
func NewBatch(transitions []ts.Transition, weights []float64) (Batch,
	error) {
	if len(transitions) == 0 {
		return Batch{}, fmt.Errorf("newBatch: no transitions")
	}
	if len(weights) != len(transitions) {
		return Batch{}, fmt.Errorf("newBatch: have %v transitions but %v "+
			"weights", len(transitions), len(weights))
	}

	size := len(transitions)
	features := transitions[0].StateBefore.Shape().TotalSize()

	states := make([]float64, 0, size*features)
	nextStates := make([]float64, 0, size*features)
	batch := Batch{
		Actions:   make([]int, size),
		Rewards:   make([]float64, size),
		Discounts: make([]float64, size),
		Weights:   append([]float64(nil), weights...),
	}

	for i, t := range transitions {
		before, err := ts.Float64s(t.StateBefore)
		if err != nil {
			return Batch{}, fmt.Errorf("newBatch: %v", err)
		}
		after, err := ts.Float64s(t.StateAfter)
		if err != nil {
			return Batch{}, fmt.Errorf("newBatch: %v", err)
		}
		if len(before) != features || len(after) != features {
			return Batch{}, fmt.Errorf("newBatch: transition %v has "+
				"states of size %v and %v, want %v", i, len(before),
				len(after), features)
		}

		states = append(states, before...)
		nextStates = append(nextStates, after...)
		batch.Actions[i] = t.Action
		batch.Rewards[i] = t.Reward
		batch.Discounts[i] = t.Discount
	}

	batch.States = tensor.New(tensor.WithShape(size, features),
		tensor.WithBacking(states))
	batch.NextStates = tensor.New(tensor.WithShape(size, features),
		tensor.WithBacking(nextStates))

	return batch, nil
}

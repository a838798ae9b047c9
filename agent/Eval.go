package agent

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/expdqn/schedule"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Eval implements an evaluation agent, which acts ε-greedily with a
// constant ε using a frozen copy of a training agent's parameters. An
// Eval agent never learns and has no replay buffer.
type Eval struct {
	policy      eGreedy
	exploration schedule.Schedule
	params      Params
	source      *rand.PCGSource
	rng         *rand.Rand
	stats       Statistics
}

// NewEval returns a new evaluation agent
func NewEval(learner Learner, numActions int, epsilon float64,
	seed uint64) (*Eval, error) {
	if epsilon < 0 || epsilon > 1 {
		return nil, fmt.Errorf("newEval: epsilon must be in [0, 1], have %v",
			epsilon)
	}

	policy, err := newEGreedy(learner, numActions)
	if err != nil {
		return nil, fmt.Errorf("newEval: %v", err)
	}

	source := &rand.PCGSource{}
	source.Seed(seed)

	return &Eval{
		policy:      policy,
		exploration: schedule.Constant(epsilon),
		params:      learner.InitialParams(),
		source:      source,
		rng:         rand.New(source),
	}, nil
}

// SetParams sets the parameters used to act. The parameters are
// copied so that later changes to p do not affect the agent.
func (e *Eval) SetParams(p Params) {
	e.params = CopyParams(p)
}

// Params returns a copy of the parameters used to act
func (e *Eval) Params() Params {
	return CopyParams(e.params)
}

// Step observes a TimeStep and returns the action to take in it
func (e *Eval) Step(t ts.TimeStep) (int, error) {
	action, value, err := e.policy.selectAction(e.params, t.Observation,
		e.exploration.Value(0), e.rng)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}

	e.stats.StateValue = value
	return action, nil
}

// Reset prepares the agent for a new environment
func (e *Eval) Reset() {}

// Statistics returns statistics about the agent's recent behaviour
func (e *Eval) Statistics() Statistics {
	return e.stats
}

// ExplorationEpsilon returns the probability of taking a random action
func (e *Eval) ExplorationEpsilon() float64 {
	return e.exploration.Value(0)
}

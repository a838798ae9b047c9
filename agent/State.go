package agent

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/expdqn/expreplay"
	"github.com/samuelfneumann/expdqn/solver"
)

// TrainState is the complete state of a Train agent, used for
// checkpointing
type TrainState struct {
	Online     Params
	Target     Params
	Actions    int64
	RNG        []byte
	Replay     expreplay.State
	Solver     solver.State
	StateValue float64
	Loss       float64
}

// EvalState is the complete state of an Eval agent, used for
// checkpointing
type EvalState struct {
	Params     Params
	RNG        []byte
	StateValue float64
}

// Snapshot returns the state of the agent
func (a *Train) Snapshot() (TrainState, error) {
	rng, err := a.source.MarshalBinary()
	if err != nil {
		return TrainState{}, fmt.Errorf("snapshot: %v", err)
	}

	state := TrainState{
		Online:     CopyParams(a.online),
		Target:     CopyParams(a.target),
		Actions:    a.actions,
		RNG:        rng,
		Replay:     a.replay.Snapshot(),
		StateValue: a.stats.StateValue,
		Loss:       a.loss,
	}
	if learner, ok := a.learner.(StatefulLearner); ok {
		state.Solver = learner.SolverState()
	}
	return state, nil
}

// Restore sets the state of the agent to a state returned by Snapshot.
// The agent is left awaiting the first TimeStep of an episode. If an
// error is returned, the agent is unchanged.
func (a *Train) Restore(s TrainState) error {
	if s.Actions < 0 {
		return fmt.Errorf("restore: negative action count %v", s.Actions)
	}
	source := &rand.PCGSource{}
	if err := source.UnmarshalBinary(s.RNG); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	// The learner is rolled back if the replay buffer cannot be restored
	learner, stateful := a.learner.(StatefulLearner)
	var previous solver.State
	if stateful {
		previous = learner.SolverState()
		if err := learner.SetSolverState(s.Solver); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
	}
	if err := a.replay.Restore(s.Replay); err != nil {
		if stateful {
			learner.SetSolverState(previous)
		}
		return fmt.Errorf("restore: %w", err)
	}

	*a.source = *source
	a.online = CopyParams(s.Online)
	a.target = CopyParams(s.Target)
	a.actions = s.Actions
	a.stats.StateValue = s.StateValue
	a.loss = s.Loss
	a.Reset()

	return nil
}

// Snapshot returns the state of the agent
func (e *Eval) Snapshot() (EvalState, error) {
	rng, err := e.source.MarshalBinary()
	if err != nil {
		return EvalState{}, fmt.Errorf("snapshot: %v", err)
	}

	return EvalState{
		Params:     CopyParams(e.params),
		RNG:        rng,
		StateValue: e.stats.StateValue,
	}, nil
}

// Restore sets the state of the agent to a state returned by Snapshot
func (e *Eval) Restore(s EvalState) error {
	if err := e.source.UnmarshalBinary(s.RNG); err != nil {
		return fmt.Errorf("restore: %v", err)
	}

	e.params = CopyParams(s.Params)
	e.stats.StateValue = s.StateValue
	return nil
}

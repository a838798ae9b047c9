package expreplay

import (
	"fmt"

	"gorgonia.org/tensor"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Accumulator turns a stream of (TimeStep, action) pairs into
// Transitions using a one-step lookback. Transitions never cross
// episode boundaries.
type Accumulator struct {
	prevObs    *tensor.Dense
	prevAction int
}

// NewAccumulator returns a new, empty Accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Step records a TimeStep and the action taken in it. If the TimeStep
// completes a transition, that transition is returned along with true.
//
// A First TimeStep starts a new episode and never completes a
// transition. Any other TimeStep completes the transition from the
// previous TimeStep. After a Last TimeStep, the next TimeStep must be
// a First TimeStep.
func (a *Accumulator) Step(t ts.TimeStep, action int) (ts.Transition,
	bool, error) {
	if t.Observation == nil {
		return ts.Transition{}, false, fmt.Errorf("step: nil observation")
	}

	if t.First() {
		a.prevObs = t.Observation
		a.prevAction = action
		return ts.Transition{}, false, nil
	}

	if a.prevObs == nil {
		return ts.Transition{}, false, fmt.Errorf("step: %w, have %v",
			errExpectedFirst, t.StepType)
	}

	transition := ts.Transition{
		StateBefore: a.prevObs,
		Action:      a.prevAction,
		Reward:      t.Reward,
		Discount:    t.Discount,
		StateAfter:  t.Observation,
	}

	if t.Last() {
		a.Reset()
	} else {
		a.prevObs = t.Observation
		a.prevAction = action
	}

	return transition, true, nil
}

// Reset clears the lookback
func (a *Accumulator) Reset() {
	a.prevObs = nil
	a.prevAction = 0
}

package wrappers

import (
	"fmt"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// ActionRepeat wraps an environment so that each action is repeated
// n times in the wrapped environment. The rewards of the repeated
// steps are summed and their discounts multiplied. Repetition stops
// early if an episode ends.
//
// ActionRepeat itself implements the environment.Environment interface
type ActionRepeat struct {
	env.Environment
	repeats    int
	stepNumber int
}

// NewActionRepeat returns a new ActionRepeat
func NewActionRepeat(e env.Environment, repeats int) (*ActionRepeat, error) {
	if repeats < 1 {
		return nil, fmt.Errorf("newActionRepeat: must repeat each action "+
			"at least once, have %v", repeats)
	}
	return &ActionRepeat{Environment: e, repeats: repeats}, nil
}

// Repeats returns the number of times each action is repeated
func (a *ActionRepeat) Repeats() int {
	return a.repeats
}

// Reset resets the wrapped environment
func (a *ActionRepeat) Reset() (ts.TimeStep, error) {
	a.stepNumber = 0
	return a.Environment.Reset()
}

// Step repeats action in the wrapped environment and returns the
// accumulated TimeStep
func (a *ActionRepeat) Step(action int) (ts.TimeStep, error) {
	var step ts.TimeStep
	reward, discount := 0.0, 1.0

	for i := 0; i < a.repeats; i++ {
		var err error
		step, err = a.Environment.Step(action)
		if err != nil {
			return ts.TimeStep{}, err
		}

		reward += step.Reward
		discount *= step.Discount
		if step.Last() {
			break
		}
	}

	a.stepNumber++
	step.Reward = reward
	step.Discount = discount
	step.Number = a.stepNumber
	return step, nil
}

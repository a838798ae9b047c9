// Package wrappers implements wrappers around environments which
// alter what an agent observes or how its actions are applied
package wrappers

import (
	"fmt"

	"gorgonia.org/tensor"

	env "github.com/samuelfneumann/expdqn/environment"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// FrameStack wraps an environment so that each observation is the
// stack of the k most recent observations of the wrapped environment.
// If the wrapped environment has observations of shape S, then the
// FrameStack has observations of shape [k, S...], with the most recent
// observation last. At the start of an episode, the first observation
// is repeated k times.
//
// FrameStack itself implements the environment.Environment interface
type FrameStack struct {
	env.Environment
	k      int
	frames []*tensor.Dense
}

// NewFrameStack returns a new FrameStack which stacks k frames
func NewFrameStack(e env.Environment, k int) (*FrameStack, error) {
	if k < 1 {
		return nil, fmt.Errorf("newFrameStack: must stack at least one "+
			"frame, have %v", k)
	}

	return &FrameStack{Environment: e, k: k}, nil
}

// Reset resets the wrapped environment and fills the frame stack with
// the first observation
func (f *FrameStack) Reset() (ts.TimeStep, error) {
	step, err := f.Environment.Reset()
	if err != nil {
		return ts.TimeStep{}, err
	}

	f.frames = f.frames[:0]
	for i := 0; i < f.k; i++ {
		f.frames = append(f.frames, step.Observation)
	}

	return f.stack(step)
}

// Step takes one step in the wrapped environment and pushes the new
// observation onto the frame stack
func (f *FrameStack) Step(action int) (ts.TimeStep, error) {
	if len(f.frames) != f.k {
		return ts.TimeStep{}, fmt.Errorf("step: environment must be reset " +
			"before stepping")
	}

	step, err := f.Environment.Step(action)
	if err != nil {
		return ts.TimeStep{}, err
	}

	copy(f.frames, f.frames[1:])
	f.frames[f.k-1] = step.Observation

	return f.stack(step)
}

// ObservationSpec returns the observation specification of the
// environment, which is the wrapped environment's specification with
// a leading dimension of k
func (f *FrameStack) ObservationSpec() env.Spec {
	inner := f.Environment.ObservationSpec()
	shape := append([]int{f.k}, inner.Shape...)

	return env.NewObservationSpec(shape, inner.Dtype)
}

// stack replaces the observation of step with the current frame stack
func (f *FrameStack) stack(step ts.TimeStep) (ts.TimeStep, error) {
	frames := make([]*tensor.Dense, f.k)
	for i, frame := range f.frames {
		frames[i] = frame.Clone().(*tensor.Dense)
		if err := frames[i].Reshape(append([]int{1},
			frame.Shape()...)...); err != nil {
			return ts.TimeStep{}, fmt.Errorf("stack: %v", err)
		}
	}

	stacked := frames[0]
	if f.k > 1 {
		var err error
		stacked, err = frames[0].Concat(0, frames[1:]...)
		if err != nil {
			return ts.TimeStep{}, fmt.Errorf("stack: %v", err)
		}
	}

	step.Observation = stacked
	return step, nil
}

package wrappers

import (
	env "github.com/samuelfneumann/expdqn/environment"
)

// Preprocess returns an environment.Builder whose environments repeat
// each action repeats times and stack the stack most recent
// observations.
func Preprocess(build env.Builder, repeats, stack int) env.Builder {
	return func(seed uint64) (env.Environment, error) {
		e, err := build(seed)
		if err != nil {
			return nil, err
		}

		repeated, err := NewActionRepeat(e, repeats)
		if err != nil {
			return nil, err
		}
		return NewFrameStack(repeated, stack)
	}
}

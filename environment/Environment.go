// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() []float64
}

// Ender determines when an episode should end. If the episode should be
// ended, End modifies the TimeStep so that it is the last in the episode
// and returns true.
type Ender interface {
	End(t *ts.TimeStep) bool
}

// Environment implements a simualted environment. Each Step takes a
// discrete action, indexed from 0.
type Environment interface {
	Reset() (ts.TimeStep, error) // Resets between episodes
	Step(action int) (ts.TimeStep, error)
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Builder constructs a fresh Environment. Calling a Builder twice with
// the same seed must produce two Environments that generate identical
// streams of TimeSteps given identical actions.
type Builder func(seed uint64) (Environment, error)

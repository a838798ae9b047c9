// Package solver implements gradient descent solvers for Gorgonia
// computational graphs, described by plain configuration values.
//
// Solvers which carry statistics between steps expose them as a State
// so that an interrupted optimization can be resumed exactly.
package solver

import (
	"fmt"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// ParseType returns the solver Type named by s, ignoring case
func ParseType(s string) (Type, error) {
	for _, t := range []Type{Adam, RMSProp, Vanilla} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("parseType: unknown solver type %q", s)
}

// Stateful is a Gorgonia Solver whose statistics can be saved and
// restored
type Stateful interface {
	G.Solver

	// State returns a copy of the statistics of the solver
	State() State

	// SetState replaces the statistics of the solver with a copy of s
	SetState(s State) error
}

// Solver wraps a Stateful solver along with the configuration that
// created it
type Solver struct {
	Stateful
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Stateful = solver.Config.Create()

	return &solver, nil
}

// New returns a new solver of type t with default hyperparameters apart
// from the step size and the smoothing term epsilon
func New(t Type, stepSize, epsilon float64, batchSize int) (*Solver, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("new: step size must be positive, have %v",
			stepSize)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("new: batch size must be >= 1, have %v",
			batchSize)
	}

	switch t {
	case Adam:
		return NewAdam(stepSize, epsilon, 0.9, 0.999, batchSize)
	case RMSProp:
		return NewRMSProp(stepSize, epsilon, 0.95, batchSize, -1.0)
	case Vanilla:
		return NewVanilla(stepSize, batchSize, -1.0)
	default:
		return nil, fmt.Errorf("new: unknown solver type %q", t)
	}
}

// Config implements a solver configuration and can be used to create
// the solvers they describe.
type Config interface {
	Create() Stateful

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}

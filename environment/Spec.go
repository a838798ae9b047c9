package environment

import (
	"fmt"

	"gorgonia.org/tensor"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion or an observation
type SpecType int

const (
	Action SpecType = iota
	Observation
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and dtype of an action or an observation in an environment.
// For discrete actions, NumValues is the number of legal actions.
type Spec struct {
	Shape     []int
	Type      SpecType
	Dtype     tensor.Dtype
	NumValues int
	Cardinality
}

// NewObservationSpec returns a new specification of observations with
// the argument shape and dtype
func NewObservationSpec(shape []int, dtype tensor.Dtype) Spec {
	return Spec{
		Shape:       append([]int(nil), shape...),
		Type:        Observation,
		Dtype:       dtype,
		Cardinality: Continuous,
	}
}

// NewDiscreteActionSpec returns a new specification of discrete actions
// enumerated as {0, 1, ..., numValues-1}
func NewDiscreteActionSpec(numValues int) Spec {
	if numValues < 1 {
		panic(fmt.Sprintf("newDiscreteActionSpec: need at least one "+
			"action, have %v", numValues))
	}
	return Spec{
		Shape:       []int{1},
		Type:        Action,
		Dtype:       tensor.Int,
		NumValues:   numValues,
		Cardinality: Discrete,
	}
}

// Len returns the number of elements described by the Spec's shape
func (s Spec) Len() int {
	size := 1
	for _, dim := range s.Shape {
		size *= dim
	}
	return size
}

// Validate checks that an observation matches the specification
func (s Spec) Validate(obs *tensor.Dense) error {
	return CheckShape(s.Shape, obs)
}

// CheckShape returns a *ShapeError if the shape of the observation is
// not want.
func CheckShape(want []int, obs *tensor.Dense) error {
	have := ts.ShapeOf(obs)
	if !ts.SameShape(want, have) {
		return &ShapeError{Want: append([]int(nil), want...), Have: have}
	}
	return nil
}

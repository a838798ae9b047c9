package environment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

func TestCheckShape(t *testing.T) {
	obs := ts.NewState([]int{2, 3}, make([]float64, 6))

	assert.NoError(t, CheckShape([]int{2, 3}, obs))

	err := CheckShape([]int{4, 84, 84}, obs)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.True(t, IsShapeMismatch(err))

	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, []int{2, 3}, shapeErr.Have)
}

func TestSpecLen(t *testing.T) {
	spec := NewObservationSpec([]int{4, 3}, tensor.Uint8)
	assert.Equal(t, 12, spec.Len())
	assert.Equal(t, Observation, spec.Type)

	action := NewDiscreteActionSpec(3)
	assert.Equal(t, 3, action.NumValues)
	assert.Equal(t, Discrete, action.Cardinality)
}

package timestep

import (
	"fmt"

	"gorgonia.org/tensor"
)

// ShapeOf returns a copy of the shape of a state. A nil state has a nil
// shape.
func ShapeOf(s *tensor.Dense) []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s.Shape()...)
}

// SameShape returns whether two shapes are equal
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NewState returns a new state of the given shape backed by data. The
// backing data must be a []uint8, []float32 or []float64.
func NewState(shape []int, data interface{}) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float64s returns the elements of a state, in row-major order,
// converted to float64. The returned slice never aliases the state.
func Float64s(s *tensor.Dense) ([]float64, error) {
	if s == nil {
		return nil, fmt.Errorf("float64s: nil state")
	}

	switch data := s.Data().(type) {
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil

	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil

	case []uint8:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("float64s: unsupported dtype %v", s.Dtype())
	}
}

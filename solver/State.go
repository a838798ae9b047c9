package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// State holds the running gradient statistics of a solver. First and
// Second hold the first and second moment estimates of each parameter,
// in the order the parameters are passed to Step. Either may be empty
// if the solver does not track that moment.
type State struct {
	Steps  int
	First  [][]float64
	Second [][]float64
}

// Validate checks that a State could belong to a solver of parameters
// with the given numbers of elements. A State with no statistics is
// always valid.
func (s State) Validate(sizes ...int) error {
	if s.Steps < 0 {
		return fmt.Errorf("validate: negative step count %v", s.Steps)
	}

	for name, m := range map[string][][]float64{
		"first":  s.First,
		"second": s.Second,
	} {
		if len(m) == 0 {
			continue
		}
		if len(m) != len(sizes) {
			return fmt.Errorf("validate: have %v %v moments for %v "+
				"parameters", len(m), name, len(sizes))
		}
		for i := range m {
			if len(m[i]) != sizes[i] {
				return fmt.Errorf("validate: %v moment %v has %v elements, "+
					"want %v", name, i, len(m[i]), sizes[i])
			}
		}
	}
	return nil
}

func (s State) copy() State {
	return State{
		Steps:  s.Steps,
		First:  copyMoments(s.First),
		Second: copyMoments(s.Second),
	}
}

func copyMoments(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i := range m {
		out[i] = append([]float64(nil), m[i]...)
	}
	return out
}

// moments tracks the running statistics of a solver which keeps a
// second moment estimate, and optionally a first moment estimate, of
// each parameter's gradient
type moments struct {
	state     State
	withFirst bool
}

func (m *moments) State() State {
	return m.state.copy()
}

func (m *moments) SetState(s State) error {
	if !m.withFirst && len(s.First) > 0 {
		return fmt.Errorf("setState: solver keeps no first moments")
	}
	if m.withFirst && len(s.First) != len(s.Second) {
		return fmt.Errorf("setState: have %v first moments but %v second "+
			"moments", len(s.First), len(s.Second))
	}
	if err := s.Validate(sizesOf(s.Second)...); err != nil {
		return fmt.Errorf("setState: %v", err)
	}

	m.state = s.copy()
	return nil
}

// prepare returns the backing data of each parameter and gradient in a
// model, allocating statistics on the first step
func (m *moments) prepare(model []G.ValueGrad) (weights, grads [][]float64,
	err error) {
	weights = make([][]float64, len(model))
	grads = make([][]float64, len(model))
	sizes := make([]int, len(model))
	for i, vg := range model {
		weights[i], grads[i], err = float64s(vg)
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %v: %v", i, err)
		}
		sizes[i] = len(weights[i])
	}

	if len(m.state.Second) == 0 {
		m.state.Second = zeroes(sizes)
		if m.withFirst {
			m.state.First = zeroes(sizes)
		}
	} else if err := m.state.Validate(sizes...); err != nil {
		return nil, nil, err
	}

	return weights, grads, nil
}

func sizesOf(m [][]float64) []int {
	sizes := make([]int, len(m))
	for i := range m {
		sizes[i] = len(m[i])
	}
	return sizes
}

func zero(s []float64) {
	for i := range s {
		s[i] = 0
	}
}

func zeroes(sizes []int) [][]float64 {
	out := make([][]float64, len(sizes))
	for i, size := range sizes {
		out[i] = make([]float64, size)
	}
	return out
}

// float64s returns the backing data of a parameter and its gradient.
// Updating the returned weights updates the parameter.
func float64s(vg G.ValueGrad) (weights, grad []float64, err error) {
	value, ok := vg.Value().(*tensor.Dense)
	if !ok {
		return nil, nil, fmt.Errorf("value must be a *tensor.Dense, have %T",
			vg.Value())
	}
	gradValue, err := vg.Grad()
	if err != nil {
		return nil, nil, err
	}

	weights, ok = value.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("expected float64 value, have %v",
			value.Dtype())
	}
	grad, ok = gradValue.Data().([]float64)
	if !ok {
		return nil, nil, fmt.Errorf("expected float64 gradient, have %v",
			gradValue.Dtype())
	}
	if len(grad) != len(weights) {
		return nil, nil, fmt.Errorf("value has %v elements but gradient "+
			"has %v", len(weights), len(grad))
	}
	return weights, grad, nil
}

package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int) (*Solver,
	error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Adam solver as described by the AdamConfig
func (a AdamConfig) Create() Stateful {
	return &adam{moments: moments{withFirst: true}, config: a}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}

// adam implements the bias-corrected Adam update
type adam struct {
	moments
	config AdamConfig
}

// Step updates the parameters of a model in place. Gradients are
// zeroed after each step.
func (a *adam) Step(model []G.ValueGrad) error {
	weights, grads, err := a.prepare(model)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	a.state.Steps++
	t := float64(a.state.Steps)
	correction1 := 1 - math.Pow(a.config.Beta1, t)
	correction2 := 1 - math.Pow(a.config.Beta2, t)

	for i := range weights {
		m, v := a.state.First[i], a.state.Second[i]
		for j := range weights[i] {
			g := grads[i][j] / float64(a.config.Batch)

			m[j] = a.config.Beta1*m[j] + (1-a.config.Beta1)*g
			v[j] = a.config.Beta2*v[j] + (1-a.config.Beta2)*g*g

			mHat := m[j] / correction1
			vHat := v[j] / correction2
			weights[i][j] -= a.config.StepSize * mHat /
				(math.Sqrt(vHat) + a.config.Epsilon)
		}
		zero(grads[i])
	}

	return nil
}

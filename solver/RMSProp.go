package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"

	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

// RMSProprConfig implements a specific configuration of the RMSProp
// solver
type RMSPropConfig struct {
	StepSize float64
	Epsilon  float64
	Rho      float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	rmsprop := RMSPropConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Batch:    batchSize,
		Clip:     clip,
	}

	return newSolver(RMSProp, rmsprop)
}

// Create returns a new RMSProp solver as described by the
// RMSPropConfig
func (r RMSPropConfig) Create() Stateful {
	return &rmsProp{config: r}
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (r RMSPropConfig) ValidType(t Type) bool {
	return t == RMSProp
}

// rmsProp scales each gradient by a running root mean square of its
// past values:
//
//	g ← clip(∇ / batch)
//	s ← ρ s + (1 - ρ) g²
//	w ← w - α g / √(s + ε)
type rmsProp struct {
	moments
	config RMSPropConfig
}

// Step updates the parameters of a model in place. Gradients are
// zeroed after each step.
func (r *rmsProp) Step(model []G.ValueGrad) error {
	weights, grads, err := r.prepare(model)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	for i := range weights {
		meanSquare := r.state.Second[i]
		for j := range weights[i] {
			g := grads[i][j] / float64(r.config.Batch)
			if r.config.Clip > 0 {
				g = floatutils.Clip(g, -r.config.Clip, r.config.Clip)
			}

			meanSquare[j] = r.config.Rho*meanSquare[j] + (1-r.config.Rho)*g*g
			weights[i][j] -= r.config.StepSize * g /
				math.Sqrt(meanSquare[j]+r.config.Epsilon)
		}
		zero(grads[i])
	}
	r.state.Steps++

	return nil
}

package timestep

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Transition is a single (s, a, r, γ, s') learning sample. Transitions
// are never modified after they are created.
type Transition struct {
	StateBefore *tensor.Dense
	Action      int
	Reward      float64
	Discount    float64
	StateAfter  *tensor.Dense
}

// NewTransition creates a new Transition from the previous TimeStep,
// the action taken in it, and the TimeStep the action led to.
func NewTransition(prev TimeStep, action int, next TimeStep) Transition {
	return Transition{
		StateBefore: prev.Observation,
		Action:      action,
		Reward:      next.Reward,
		Discount:    next.Discount,
		StateAfter:  next.Observation,
	}
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | Action: %v  |  Reward: %.2f  |  "+
		"Discount: %.2f  |  Shape: %v", t.Action, t.Reward, t.Discount,
		ShapeOf(t.StateBefore))
}

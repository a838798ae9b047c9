package trackers

import (
	"github.com/samuelfneumann/expdqn/agent"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// DefaultStateValueStepSize is the step size used by the default
// StateValueTracker
const DefaultStateValueStepSize = 1e-3

// StateValueTracker tracks an exponentially weighted average of an agent's
// state value estimates. The average is corrected for its initial
// bias so that early estimates are not pulled toward zero.
type StateValueTracker struct {
	stepSize float64
	initial  float64
	trace    float64
	value    float64
}

// NewStateValue returns a new StateValueTracker. Until the first
// TimeStep is tracked, the average is the agent's current state value.
func NewStateValue(a agent.Agent, stepSize float64) *StateValueTracker {
	s := &StateValueTracker{
		stepSize: stepSize,
		initial:  a.Statistics().StateValue,
	}
	s.Reset()
	return s
}

// Reset restarts the average
func (s *StateValueTracker) Reset() {
	s.trace = 0
	s.value = s.initial
}

// Track updates the average with the agent's latest state value
func (s *StateValueTracker) Track(_ ts.TimeStep, a agent.Agent) {
	s.trace = (1-s.stepSize)*s.trace + s.stepSize
	stepSize := s.stepSize / s.trace
	s.value = (1-stepSize)*s.value + stepSize*a.Statistics().StateValue
}

// Get returns the average state value
func (s *StateValueTracker) Get() map[string]float64 {
	return map[string]float64{StateValue: s.value}
}

package trackers

import (
	"time"

	"github.com/samuelfneumann/expdqn/agent"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// StepRateTracker tracks the number of TimeSteps per second of wall-clock
// time since the Tracker was last reset
type StepRateTracker struct {
	now   func() time.Time
	start time.Time
	steps int
}

// NewStepRate returns a new StepRateTracker which reads the time from
// now. If now is nil, time.Now is used.
func NewStepRate(now func() time.Time) *StepRateTracker {
	if now == nil {
		now = time.Now
	}

	s := &StepRateTracker{now: now}
	s.Reset()
	return s
}

// Reset restarts the timer
func (s *StepRateTracker) Reset() {
	s.start = s.now()
	s.steps = 0
}

// Track counts a timestep
func (s *StepRateTracker) Track(ts.TimeStep, agent.Agent) {
	s.steps++
}

// Get returns the step rate. The rate is zero if no time has passed.
func (s *StepRateTracker) Get() map[string]float64 {
	elapsed := s.now().Sub(s.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.steps) / elapsed
	}

	return map[string]float64{StepRate: rate}
}

// Package schedule implements values which change over the course of
// training, such as exploration rates and sampling temperatures
package schedule

import (
	"fmt"
)

// Schedule maps a time step to a value
type Schedule interface {
	Value(t int) float64
}

// Linear is a Schedule which holds a begin value until time BeginT,
// then linearly interpolates to an end value over DecaySteps steps and
// holds the end value afterwards. A Linear with zero DecaySteps is a
// step function at BeginT.
//
// Linear schedules are pure: Value has no side effects.
type Linear struct {
	BeginT     int
	DecaySteps int
	BeginValue float64
	EndValue   float64
}

// NewLinear returns a new Linear schedule which decays over decaySteps
// steps starting at time beginT
func NewLinear(beginT, decaySteps int, beginValue,
	endValue float64) (Linear, error) {
	if beginT < 0 {
		return Linear{}, fmt.Errorf("newLinear: begin time must be "+
			"non-negative, have %v", beginT)
	}
	if decaySteps < 0 {
		return Linear{}, fmt.Errorf("newLinear: decay steps must be "+
			"non-negative, have %v", decaySteps)
	}

	return Linear{
		BeginT:     beginT,
		DecaySteps: decaySteps,
		BeginValue: beginValue,
		EndValue:   endValue,
	}, nil
}

// NewLinearEndT returns a new Linear schedule which decays between
// times beginT and endT
func NewLinearEndT(beginT, endT int, beginValue,
	endValue float64) (Linear, error) {
	if endT < beginT {
		return Linear{}, fmt.Errorf("newLinearEndT: end time %v before "+
			"begin time %v", endT, beginT)
	}
	return NewLinear(beginT, endT-beginT, beginValue, endValue)
}

// Value returns the value of the schedule at time t
func (l Linear) Value(t int) float64 {
	if t <= l.BeginT {
		return l.BeginValue
	}
	if t >= l.BeginT+l.DecaySteps {
		return l.EndValue
	}

	frac := float64(t-l.BeginT) / float64(l.DecaySteps)
	return l.BeginValue + frac*(l.EndValue-l.BeginValue)
}

func (l Linear) String() string {
	return fmt.Sprintf("Linear(%v -> %v over [%v, %v])", l.BeginValue,
		l.EndValue, l.BeginT, l.BeginT+l.DecaySteps)
}

// Constant is a Schedule which always returns the same value
type Constant float64

// Value returns the constant value, regardless of t
func (c Constant) Value(int) float64 {
	return float64(c)
}

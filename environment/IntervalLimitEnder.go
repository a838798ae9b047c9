package environment

import (
	"gonum.org/v1/gonum/spatial/r1"

	ts "github.com/samuelfneumann/expdqn/timestep"
)

// IntervalLimit implements the Ender interface to end episodes
// whenever a single feature in a feature vector leaves some interval.
// Episodes ended by an IntervalLimit are terminated: the discount of the
// last TimeStep is set to 0.
type IntervalLimit struct {
	intervals []r1.Interval
	indices   []int
}

// NewIntervalLimit creates and returns a new inteval limit
func NewIntervalLimit(limits []r1.Interval, obsIndices []int) *IntervalLimit {
	if len(limits) != len(obsIndices) {
		panic("limits should have same length as observation indices")
	}

	return &IntervalLimit{limits, obsIndices}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode temrination.
func (i *IntervalLimit) End(t *ts.TimeStep) bool {
	obs, err := ts.Float64s(t.Observation)
	if err != nil {
		return false
	}

	for index := range i.indices {
		featureIndex := i.indices[index]
		interval := i.intervals[index]

		if obs[featureIndex] > interval.Max ||
			obs[featureIndex] < interval.Min {
			t.StepType = ts.Last
			t.Discount = 0
			return true
		}
	}
	return false
}

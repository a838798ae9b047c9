// Package trackers implements Trackers, which track statistics of an
// agent acting in an environment
package trackers

import (
	"time"

	"github.com/samuelfneumann/expdqn/agent"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Names of the statistics generated by the default Trackers
const (
	EpisodeReturn = "episode_return"
	NumEpisodes   = "num_episodes"
	StepRate      = "step_rate"
	StateValue    = "state_value"
)

// Tracker tracks some statistic of an agent acting in an environment.
// Track is called with each TimeStep the agent observes, after the
// agent has stepped on it.
type Tracker interface {
	Reset()
	Track(t ts.TimeStep, a agent.Agent)
	Get() map[string]float64
}

// Default returns the Trackers used to summarize a run of an agent:
// the mean episode return, the number of episodes, the step rate, and
// an average of the agent's state value estimates
func Default(a agent.Agent, now func() time.Time) []Tracker {
	return []Tracker{
		NewReturn(),
		NewStepRate(now),
		NewStateValue(a, DefaultStateValueStepSize),
	}
}

// Reset resets each Tracker
func Reset(trackers []Tracker) {
	for _, t := range trackers {
		t.Reset()
	}
}

// Generate merges the statistics of each Tracker. Later Trackers
// overwrite statistics with the same name as earlier Trackers.
func Generate(trackers []Tracker) map[string]float64 {
	stats := make(map[string]float64)
	for _, t := range trackers {
		for name, value := range t.Get() {
			stats[name] = value
		}
	}
	return stats
}

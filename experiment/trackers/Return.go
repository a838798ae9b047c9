package trackers

import (
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/expdqn/agent"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Return tracks the episodic return of an agent. When an environment
// returns a TimeStep, this Tracker will extract the reward and
// accumulate the return for each episode.
//
// Note: If an environment is wrapped by some environment wrapper
// which modifies rewards, then this Tracker tracks the modified rewards
// returned by the wrapped environment.
type Return struct {
	currentReturn  float64
	episodeReturns []float64
}

// NewReturn creates and returns a new *Return Tracker
func NewReturn() *Return {
	return &Return{}
}

// Reset forgets all tracked episodes
func (r *Return) Reset() {
	r.currentReturn = 0
	r.episodeReturns = nil
}

// Track tracks the reward seen on a timestep. A First TimeStep starts
// a new episode, and a Last TimeStep completes the current one.
func (r *Return) Track(step ts.TimeStep, _ agent.Agent) {
	if step.First() {
		r.currentReturn = 0
		return
	}

	r.currentReturn += step.Reward
	if step.Last() {
		r.episodeReturns = append(r.episodeReturns, r.currentReturn)
		r.currentReturn = 0
	}
}

// Get returns the mean return over completed episodes and the number
// of completed episodes. If no episode has completed, the return of
// the current partial episode is reported instead.
func (r *Return) Get() map[string]float64 {
	episodeReturn := r.currentReturn
	if len(r.episodeReturns) > 0 {
		episodeReturn = stat.Mean(r.episodeReturns, nil)
	}

	return map[string]float64{
		EpisodeReturn: episodeReturn,
		NumEpisodes:   float64(len(r.episodeReturns)),
	}
}

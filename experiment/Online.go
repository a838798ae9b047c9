package experiment

import (
	"fmt"

	"github.com/samuelfneumann/expdqn/agent"
	env "github.com/samuelfneumann/expdqn/environment"
	"github.com/samuelfneumann/expdqn/experiment/trackers"
	ts "github.com/samuelfneumann/expdqn/timestep"
)

// Online runs an agent online in an environment, passing each TimeStep
// the agent observes to a number of Trackers
type Online struct {
	env.Environment
	agent.Agent
	maxEpisodeSteps int
	trackers        []trackers.Tracker
}

// NewOnline creates and returns a new online run of an agent in an
// environment. Episodes longer than maxEpisodeSteps agent steps are
// truncated; if maxEpisodeSteps is 0, episodes are never truncated.
func NewOnline(e env.Environment, a agent.Agent, maxEpisodeSteps int,
	t ...trackers.Tracker) *Online {
	return &Online{e, a, maxEpisodeSteps, t}
}

// Run runs the agent for exactly steps agent steps, starting from a
// newly reset environment. Every TimeStep the agent steps on counts
// against the budget, including the Last TimeStep of an episode, whose
// selected action is never taken.
func (o *Online) Run(steps int) error {
	var step ts.TimeStep
	needsReset := true
	episodeSteps := 0

	for taken := 0; taken < steps; taken++ {
		if needsReset {
			o.Agent.Reset()

			var err error
			step, err = o.Environment.Reset()
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			needsReset = false
			episodeSteps = 0
		}

		action, err := o.Agent.Step(step)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		o.track(step)

		if step.Last() {
			needsReset = true
			continue
		}

		step, err = o.Environment.Step(action)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		episodeSteps++

		// Truncation keeps the discount so that the agent still
		// bootstraps from the final state
		if o.maxEpisodeSteps > 0 && episodeSteps >= o.maxEpisodeSteps {
			step.StepType = ts.Last
		}
	}

	return nil
}

// track tracks the current timestep in each Tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tracker := range o.trackers {
		tracker.Track(t, o.Agent)
	}
}

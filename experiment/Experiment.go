// Package experiment implements the training loop of an experiment,
// which alternates between training an agent, evaluating it, and
// checkpointing the state of the experiment
package experiment

import "fmt"

// Phase is the phase of a Loop
type Phase int

const (
	Initializing Phase = iota
	Training
	Evaluating
	Checkpointing
	Done
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Training:
		return "training"
	case Evaluating:
		return "evaluating"
	case Checkpointing:
		return "checkpointing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// LoopConfig represents a configuration of a training loop. Frame
// counts are counted in environment frames, each agent step taking
// NumActionRepeats frames.
type LoopConfig struct {
	// NumIterations is the index of the last iteration run. Iteration 0
	// only evaluates the initial agent.
	NumIterations int

	NumTrainFrames      int
	NumEvalFrames       int
	NumActionRepeats    int
	MaxFramesPerEpisode int

	// EvalFreq and SaveFreq are counted in iterations
	EvalFreq int
	SaveFreq int

	// ObservationShape is the shape of the observations the agents
	// expect from the environment
	ObservationShape []int

	// Seed seeds the random number generator from which the seed of
	// each iteration's environment is drawn
	Seed uint64
}

// Validate checks a LoopConfig for errors
func (c LoopConfig) Validate() error {
	if c.NumIterations < 0 {
		return fmt.Errorf("validate: number of iterations must be >= 0, "+
			"have %v", c.NumIterations)
	}
	if c.NumTrainFrames < 0 || c.NumEvalFrames < 0 {
		return fmt.Errorf("validate: frame counts must be >= 0, have %v "+
			"train and %v eval", c.NumTrainFrames, c.NumEvalFrames)
	}
	if c.NumActionRepeats < 1 {
		return fmt.Errorf("validate: action repeats must be >= 1, have %v",
			c.NumActionRepeats)
	}
	if c.MaxFramesPerEpisode < 0 {
		return fmt.Errorf("validate: max frames per episode must be >= 0, "+
			"have %v", c.MaxFramesPerEpisode)
	}
	if c.EvalFreq < 1 || c.SaveFreq < 1 {
		return fmt.Errorf("validate: frequencies must be >= 1, have eval "+
			"%v and save %v", c.EvalFreq, c.SaveFreq)
	}
	if len(c.ObservationShape) == 0 {
		return fmt.Errorf("validate: empty observation shape")
	}
	return nil
}

// steps returns the number of agent steps in a number of frames
func (c LoopConfig) steps(frames int) int {
	return frames / c.NumActionRepeats
}

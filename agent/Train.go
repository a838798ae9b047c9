package agent

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/expdqn/expreplay"
	"github.com/samuelfneumann/expdqn/schedule"
	ts "github.com/samuelfneumann/expdqn/timestep"
	"github.com/samuelfneumann/expdqn/utils/floatutils"
)

// TrainConfig implements a configuration of a training agent. Periods
// are counted in actions taken by the agent.
type TrainConfig struct {
	NumActions         int
	BatchSize          int
	LearnPeriod        int
	TargetUpdatePeriod int

	// MinReplaySize is the number of transitions which must be stored
	// in the replay buffer before learning starts
	MinReplaySize int

	// NumActionRepeats is the number of environment frames each action
	// is held for, used to count frames for the exploration schedule
	NumActionRepeats int
}

// Validate checks a TrainConfig for errors
func (c TrainConfig) Validate() error {
	if c.NumActions < 1 {
		return fmt.Errorf("validate: need at least one action, have %v",
			c.NumActions)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be >= 1, have %v",
			c.BatchSize)
	}
	if c.LearnPeriod < 1 {
		return fmt.Errorf("validate: learn period must be >= 1, have %v",
			c.LearnPeriod)
	}
	if c.TargetUpdatePeriod < 1 {
		return fmt.Errorf("validate: target update period must be >= 1, "+
			"have %v", c.TargetUpdatePeriod)
	}
	if c.MinReplaySize < 0 {
		return fmt.Errorf("validate: min replay size must be >= 0, have %v",
			c.MinReplaySize)
	}
	if c.NumActionRepeats < 1 {
		return fmt.Errorf("validate: action repeats must be >= 1, have %v",
			c.NumActionRepeats)
	}
	return nil
}

// phase is the phase of a training agent within an episode
type phase int

const (
	awaitingObservation phase = iota
	actingAndLearning
)

// Option configures a Train agent
type Option func(*Train)

// WithLogger sets the logger used by a Train agent
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Train) {
		t.logger = logger
	}
}

// Train implements a learning agent. On each step it selects an action
// ε-greedily, adds completed transitions to its replay buffer, and
// once the buffer holds enough transitions it periodically learns from
// a sampled batch and synchronizes its target parameters.
//
// Train exclusively owns its replay buffer.
type Train struct {
	config      TrainConfig
	learner     Learner
	policy      eGreedy
	replay      *expreplay.TransitionReplay
	accumulator *expreplay.Accumulator
	exploration schedule.Schedule
	logger      zerolog.Logger

	online  Params
	target  Params
	source  *rand.PCGSource
	rng     *rand.Rand
	actions int64
	phase   phase
	stats   Statistics
	loss    float64
}

// NewTrain returns a new training agent
func NewTrain(config TrainConfig, learner Learner,
	replay *expreplay.TransitionReplay, exploration schedule.Schedule,
	seed uint64, opts ...Option) (*Train, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newTrain: %v", err)
	}
	if replay == nil {
		return nil, fmt.Errorf("newTrain: nil replay buffer")
	}
	if exploration == nil {
		return nil, fmt.Errorf("newTrain: nil exploration schedule")
	}

	policy, err := newEGreedy(learner, config.NumActions)
	if err != nil {
		return nil, fmt.Errorf("newTrain: %v", err)
	}

	source := &rand.PCGSource{}
	source.Seed(seed)

	online := learner.InitialParams()
	agent := &Train{
		config:      config,
		learner:     learner,
		policy:      policy,
		replay:      replay,
		accumulator: expreplay.NewAccumulator(),
		exploration: exploration,
		logger:      zerolog.Nop(),
		online:      online,
		target:      learner.TargetUpdate(online),
		source:      source,
		rng:         rand.New(source),
	}

	for _, opt := range opts {
		opt(agent)
	}

	return agent, nil
}

// Step observes a TimeStep and returns the action to take in it
func (a *Train) Step(t ts.TimeStep) (int, error) {
	if t.First() {
		a.phase = actingAndLearning
	} else if a.phase == awaitingObservation {
		return 0, fmt.Errorf("step: expected first timestep of an "+
			"episode, have %v", t.StepType)
	}

	action, value, err := a.policy.selectAction(a.online, t.Observation,
		a.ExplorationEpsilon(), a.rng)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	a.stats.StateValue = value

	transition, ok, err := a.accumulator.Step(t, action)
	if err != nil {
		return 0, fmt.Errorf("step: %v", err)
	}
	if ok {
		if _, err := a.replay.Add(transition); err != nil {
			return 0, fmt.Errorf("step: %v", err)
		}
	}

	if t.Last() {
		a.phase = awaitingObservation
	}
	a.actions++

	if a.replay.Size() < a.config.MinReplaySize {
		return action, nil
	}

	if a.actions%int64(a.config.LearnPeriod) == 0 {
		if err := a.learn(); err != nil {
			return 0, fmt.Errorf("step: %v", err)
		}
	}

	if a.actions%int64(a.config.TargetUpdatePeriod) == 0 {
		a.target = a.learner.TargetUpdate(a.online)
		a.logger.Debug().Int64("actions", a.actions).Msg("updated target")
	}

	return action, nil
}

// learn samples a batch from the replay buffer, updates the online
// parameters, and sets the priorities of the sampled transitions to
// the magnitude of their TD errors
func (a *Train) learn() error {
	sample, err := a.replay.Sample(a.config.BatchSize, a.rng)
	if expreplay.IsInsufficientData(err) {
		a.logger.Debug().Err(err).Msg("skipping learning step")
		return nil
	} else if err != nil {
		return fmt.Errorf("learn: %w", err)
	}

	batch, err := NewBatch(sample.Transitions, sample.Weights)
	if err != nil {
		return fmt.Errorf("learn: %v", err)
	}

	online, metrics, err := a.learner.Update(a.online, a.target, batch,
		a.rng)
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	if len(metrics.TDErrors) != batch.Size() {
		return fmt.Errorf("learn: have %v TD errors for batch of size %v",
			len(metrics.TDErrors), batch.Size())
	}

	a.online = online
	a.loss = metrics.Loss

	err = a.replay.UpdatePriorities(sample.Indices,
		floatutils.Abs(metrics.TDErrors))
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	return nil
}

// Reset prepares the agent for a new environment
func (a *Train) Reset() {
	a.accumulator.Reset()
	a.phase = awaitingObservation
}

// Statistics returns statistics about the agent's recent behaviour
func (a *Train) Statistics() Statistics {
	return a.stats
}

// OnlineParams returns a copy of the online parameters
func (a *Train) OnlineParams() Params {
	return CopyParams(a.online)
}

// TargetParams returns a copy of the target parameters
func (a *Train) TargetParams() Params {
	return CopyParams(a.target)
}

// Actions returns the number of actions the agent has taken
func (a *Train) Actions() int64 {
	return a.actions
}

// Loss returns the loss of the most recent learning step
func (a *Train) Loss() float64 {
	return a.loss
}

// ExplorationEpsilon returns the current probability of taking a
// random action
func (a *Train) ExplorationEpsilon() float64 {
	frame := a.actions * int64(a.config.NumActionRepeats)
	return a.exploration.Value(int(frame))
}

// ImportanceSamplingExponent returns the exponent of the importance
// sampling weights of the replay buffer
func (a *Train) ImportanceSamplingExponent() float64 {
	return a.replay.ImportanceSamplingExponent()
}

// MaxSeenPriority returns the priority given to new transitions in
// the replay buffer
func (a *Train) MaxSeenPriority() float64 {
	return a.replay.MaxSeenPriority()
}

// SamplingTemperature returns the current temperature of the replay
// buffer's sampling distribution
func (a *Train) SamplingTemperature() float64 {
	return a.replay.Temperature()
}

// ReplaySize returns the number of transitions in the replay buffer
func (a *Train) ReplaySize() int {
	return a.replay.Size()
}

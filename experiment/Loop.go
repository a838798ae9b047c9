package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/expdqn/agent"
	env "github.com/samuelfneumann/expdqn/environment"
	"github.com/samuelfneumann/expdqn/experiment/checkpointer"
	"github.com/samuelfneumann/expdqn/experiment/trackers"
	"github.com/samuelfneumann/expdqn/results"
)

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the logger used by a Loop
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithClock sets the clock used to measure frame rates
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// Loop alternates between training and evaluating agents, writing a
// row of statistics after each iteration and periodically saving its
// state so that an interrupted experiment can resume at the last saved
// iteration boundary.
//
// Each iteration builds a new environment from a seed drawn from the
// Loop's random number generator, so that a resumed experiment sees
// the same environments as an uninterrupted one. On iteration 0 the
// training agent does not act.
type Loop struct {
	config       LoopConfig
	build        env.Builder
	train        *agent.Train
	eval         *agent.Eval
	writer       results.Writer
	checkpointer checkpointer.Checkpointer
	logger       zerolog.Logger
	now          func() time.Time

	source    *rand.PCGSource
	rng       *rand.Rand
	iteration int
	phase     Phase
	evalStats map[string]float64
}

// NewLoop returns a new Loop. A probe environment is built to check
// that its observations have the configured shape, and the Loop is
// restored from the checkpointer if it holds a saved state. A nil
// writer or checkpointer discards rows or states.
func NewLoop(config LoopConfig, build env.Builder, train *agent.Train,
	eval *agent.Eval, writer results.Writer,
	ckpt checkpointer.Checkpointer, opts ...Option) (*Loop, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newLoop: %v", err)
	}
	if build == nil || train == nil || eval == nil {
		return nil, fmt.Errorf("newLoop: environment builder and agents " +
			"must be non-nil")
	}
	if writer == nil {
		writer = results.NewNull()
	}
	if ckpt == nil {
		ckpt = checkpointer.NewNull()
	}

	source := &rand.PCGSource{}
	source.Seed(config.Seed)

	l := &Loop{
		config:       config,
		build:        build,
		train:        train,
		eval:         eval,
		writer:       writer,
		checkpointer: ckpt,
		logger:       zerolog.Nop(),
		now:          time.Now,
		source:       source,
		rng:          rand.New(source),
		phase:        Initializing,
		evalStats:    emptyStats(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if err := l.probe(); err != nil {
		return nil, fmt.Errorf("newLoop: %w", err)
	}

	if ckpt.CanBeRestored() {
		var s State
		if err := ckpt.Restore(&s); err != nil {
			return nil, fmt.Errorf("newLoop: %w", err)
		}
		if err := l.Restore(s); err != nil {
			return nil, fmt.Errorf("newLoop: %w", err)
		}
		l.logger.Info().Int("iteration", l.iteration).Msg("restored checkpoint")
	}

	return l, nil
}

// probe checks that the environment produces observations of the
// configured shape
func (l *Loop) probe() error {
	e, err := l.build(l.rng.Uint64())
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	step, err := e.Reset()
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	return env.CheckShape(l.config.ObservationShape, step.Observation)
}

// Iteration returns the next iteration to run
func (l *Loop) Iteration() int {
	return l.iteration
}

// Phase returns the current phase of the Loop
func (l *Loop) Phase() Phase {
	return l.phase
}

// Finished returns whether all iterations have run
func (l *Loop) Finished() bool {
	return l.iteration > l.config.NumIterations
}

// Run runs all remaining iterations, then closes the Writer and saves
// the final state. Cancellation of ctx is only checked between
// iterations.
func (l *Loop) Run(ctx context.Context) error {
	for !l.Finished() {
		if err := ctx.Err(); err != nil {
			l.logger.Info().Int("iteration", l.iteration).Msg("stopping early")
			return fmt.Errorf("run: %w", err)
		}

		if _, err := l.RunIteration(); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	l.setPhase(Checkpointing)
	if err := l.writer.Close(); err != nil {
		return fmt.Errorf("run: could not close writer: %w", err)
	}
	if err := l.save(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	l.setPhase(Done)
	return nil
}

// RunIteration runs a single iteration and returns the row of
// statistics it wrote
func (l *Loop) RunIteration() (results.Row, error) {
	if l.Finished() {
		return nil, fmt.Errorf("runIteration: all %v iterations have run",
			l.config.NumIterations+1)
	}

	e, err := l.build(l.rng.Uint64())
	if err != nil {
		return nil, fmt.Errorf("runIteration: could not build "+
			"environment: %w", err)
	}

	l.setPhase(Training)
	trainFrames := l.config.NumTrainFrames
	if l.iteration == 0 {
		trainFrames = 0
	}
	trainStats, err := l.runAgent(e, l.train, trainFrames)
	if err != nil {
		return nil, fmt.Errorf("runIteration: training: %w", err)
	}

	if l.iteration%l.config.EvalFreq == 0 {
		l.setPhase(Evaluating)
		l.eval.SetParams(l.train.OnlineParams())

		evalStats, err := l.runAgent(e, l.eval, l.config.NumEvalFrames)
		if err != nil {
			return nil, fmt.Errorf("runIteration: evaluation: %w", err)
		}
		l.evalStats = evalStats
	}

	row := l.row(trainStats)
	if err := l.writer.Write(row); err != nil {
		return nil, fmt.Errorf("runIteration: could not write results: %w",
			err)
	}
	l.logRow(row)

	l.iteration++
	if l.iteration%l.config.SaveFreq == 0 {
		l.setPhase(Checkpointing)
		if err := l.save(); err != nil {
			return nil, fmt.Errorf("runIteration: %w", err)
		}
	}

	return row, nil
}

// runAgent runs an agent for a number of frames and returns the
// statistics of the run
func (l *Loop) runAgent(e env.Environment, a agent.Agent,
	frames int) (map[string]float64, error) {
	t := trackers.Default(a, l.now)
	maxEpisodeSteps := l.config.steps(l.config.MaxFramesPerEpisode)

	run := NewOnline(e, a, maxEpisodeSteps, t...)
	if err := run.Run(l.config.steps(frames)); err != nil {
		return nil, err
	}

	return trackers.Generate(t), nil
}

// row builds the row of statistics of the current iteration
func (l *Loop) row(trainStats map[string]float64) results.Row {
	repeats := float64(l.config.NumActionRepeats)

	return results.Row{
		{Name: "iteration", Value: float64(l.iteration)},
		{Name: "frame", Value: float64(l.iteration * l.config.NumTrainFrames)},
		{Name: "eval_episode_return", Value: l.evalStats[trackers.EpisodeReturn]},
		{Name: "train_episode_return", Value: trainStats[trackers.EpisodeReturn]},
		{Name: "eval_num_episodes", Value: l.evalStats[trackers.NumEpisodes]},
		{Name: "train_num_episodes", Value: trainStats[trackers.NumEpisodes]},
		{Name: "eval_frame_rate", Value: l.evalStats[trackers.StepRate] * repeats},
		{Name: "train_frame_rate", Value: trainStats[trackers.StepRate] * repeats},
		{Name: "train_exploration_epsilon", Value: l.train.ExplorationEpsilon()},
		{Name: "train_state_value", Value: trainStats[trackers.StateValue]},
		{Name: "importance_sampling_exponent",
			Value: l.train.ImportanceSamplingExponent()},
		{Name: "max_seen_priority", Value: l.train.MaxSeenPriority()},
		{Name: "sampling_temperature", Value: l.train.SamplingTemperature()},
		{Name: "replay_size", Value: float64(l.train.ReplaySize())},
	}
}

func (l *Loop) logRow(row results.Row) {
	event := l.logger.Info()
	for _, c := range row {
		event = event.Float64(c.Name, c.Value)
	}
	event.Msg("finished iteration")
}

// save saves the state of the Loop to the checkpointer
func (l *Loop) save() error {
	s, err := l.Snapshot()
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if err := l.checkpointer.Save(s); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	l.logger.Debug().Int("iteration", l.iteration).Msg("saved checkpoint")
	return nil
}

func (l *Loop) setPhase(p Phase) {
	l.phase = p
	l.logger.Debug().
		Int("iteration", l.iteration).
		Stringer("phase", p).
		Msg("entering phase")
}

// emptyStats returns the statistics reported before any evaluation
func emptyStats() map[string]float64 {
	return map[string]float64{
		trackers.EpisodeReturn: 0,
		trackers.NumEpisodes:   0,
		trackers.StepRate:      0,
		trackers.StateValue:    0,
	}
}

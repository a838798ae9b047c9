// Package config implements the configuration of an experiment. A
// Config is built once at startup and passed by value to the
// constructors of each component.
package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/experiment"
	"github.com/samuelfneumann/expdqn/expreplay"
	"github.com/samuelfneumann/expdqn/schedule"
	"github.com/samuelfneumann/expdqn/solver"
)

// Environments which can be configured
const (
	Cartpole    = "cartpole"
	MountainCar = "mountaincar"
)

// Config holds all experiment configuration. Frame counts are counted
// in environment frames, while the target network update period and
// learn period are counted in agent actions.
type Config struct {
	// Environment
	EnvironmentName     string  `mapstructure:"environment_name"`
	MaxFramesPerEpisode int     `mapstructure:"max_frames_per_episode"`
	NumActionRepeats    int     `mapstructure:"num_action_repeats"`
	NumStackedFrames    int     `mapstructure:"num_stacked_frames"`
	MaxAbsReward        float64 `mapstructure:"max_abs_reward"`

	// Replay
	ReplayCapacity             int     `mapstructure:"replay_capacity"`
	CompressState              bool    `mapstructure:"compress_state"`
	MinReplayCapacityFraction  float64 `mapstructure:"min_replay_capacity_fraction"`
	UniformSampleProbability   float64 `mapstructure:"uniform_sample_probability"`
	NormalizeWeights           bool    `mapstructure:"normalize_weights"`
	ImportanceSamplingExponent float64 `mapstructure:"importance_sampling_exponent"`
	TempBeginValue             float64 `mapstructure:"temp_begin_value"`
	TempEndValue               float64 `mapstructure:"temp_end_value"`

	// Agent
	BatchSize                            int     `mapstructure:"batch_size"`
	LearnPeriod                          int     `mapstructure:"learn_period"`
	TargetNetworkUpdatePeriod            int     `mapstructure:"target_network_update_period"`
	ExplorationEpsilonBeginValue         float64 `mapstructure:"exploration_epsilon_begin_value"`
	ExplorationEpsilonEndValue           float64 `mapstructure:"exploration_epsilon_end_value"`
	ExplorationEpsilonDecayFrameFraction float64 `mapstructure:"exploration_epsilon_decay_frame_fraction"`
	EvalExplorationEpsilon               float64 `mapstructure:"eval_exploration_epsilon"`
	AdditionalDiscount                   float64 `mapstructure:"additional_discount"`
	InitStdDev                           float64 `mapstructure:"init_std_dev"`

	// Optimizer
	Optimizer        string  `mapstructure:"optimizer"`
	LearningRate     float64 `mapstructure:"learning_rate"`
	OptimizerEpsilon float64 `mapstructure:"optimizer_epsilon"`
	GradErrorBound   float64 `mapstructure:"grad_error_bound"`

	// Loop
	Seed           uint64 `mapstructure:"seed"`
	NumIterations  int    `mapstructure:"num_iterations"`
	NumTrainFrames int    `mapstructure:"num_train_frames"`
	NumEvalFrames  int    `mapstructure:"num_eval_frames"`
	SaveFreq       int    `mapstructure:"save_freq"`
	EvalFreq       int    `mapstructure:"eval_freq"`

	// Output
	Name             string `mapstructure:"name"`
	ResultsCSVPath   string `mapstructure:"results_csv_path"`
	ResultsChartPath string `mapstructure:"results_chart_path"`
	CheckpointDir    string `mapstructure:"checkpoint_dir"`
	LogLevel         string `mapstructure:"log_level"`
}

// Default returns a config with the defaults of the prioritized DQN
// Atari experiments
func Default() Config {
	return Config{
		EnvironmentName:     Cartpole,
		MaxFramesPerEpisode: 108000,
		NumActionRepeats:    4,
		NumStackedFrames:    4,
		MaxAbsReward:        1,

		ReplayCapacity:             1000000,
		CompressState:              true,
		MinReplayCapacityFraction:  0.05,
		UniformSampleProbability:   1e-3,
		NormalizeWeights:           true,
		ImportanceSamplingExponent: 1,
		TempBeginValue:             100,
		TempEndValue:               1,

		BatchSize:                            32,
		LearnPeriod:                          16,
		TargetNetworkUpdatePeriod:            120000,
		ExplorationEpsilonBeginValue:         1,
		ExplorationEpsilonEndValue:           0.01,
		ExplorationEpsilonDecayFrameFraction: 0.02,
		EvalExplorationEpsilon:               0.01,
		AdditionalDiscount:                   0.99,
		InitStdDev:                           0.01,

		Optimizer:        string(solver.RMSProp),
		LearningRate:     0.00025 / 4,
		OptimizerEpsilon: (0.01 / (32 * 32)) * (1.0 / 16),
		GradErrorBound:   1.0 / 32,

		Seed:           1,
		NumIterations:  200,
		NumTrainFrames: 1000000,
		NumEvalFrames:  500000,
		SaveFreq:       1,
		EvalFreq:       1,

		Name:     "deleteme",
		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.EnvironmentName != Cartpole && c.EnvironmentName != MountainCar {
		return fmt.Errorf("environment_name %q is not supported",
			c.EnvironmentName)
	}
	if c.NumActionRepeats < 1 || c.NumStackedFrames < 1 {
		return fmt.Errorf("num_action_repeats and num_stacked_frames must " +
			"be positive")
	}
	if c.MaxFramesPerEpisode < 0 || c.MaxAbsReward < 0 {
		return fmt.Errorf("max_frames_per_episode and max_abs_reward must " +
			"be non-negative")
	}
	if c.MinReplayCapacityFraction < 0 || c.MinReplayCapacityFraction > 1 {
		return fmt.Errorf("min_replay_capacity_fraction must be in [0, 1]")
	}
	if err := c.ReplayConfig().Validate(); err != nil {
		return err
	}
	if c.ExplorationEpsilonDecayFrameFraction < 0 {
		return fmt.Errorf("exploration_epsilon_decay_frame_fraction must " +
			"be non-negative")
	}
	if c.EvalExplorationEpsilon < 0 || c.EvalExplorationEpsilon > 1 {
		return fmt.Errorf("eval_exploration_epsilon must be in [0, 1]")
	}
	if c.AdditionalDiscount < 0 || c.AdditionalDiscount > 1 {
		return fmt.Errorf("additional_discount must be in [0, 1]")
	}
	if _, err := solver.ParseType(c.Optimizer); err != nil {
		return err
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if err := c.TrainConfig(1).Validate(); err != nil {
		return err
	}
	if err := c.LoopConfig([]int{1}).Validate(); err != nil {
		return err
	}
	if _, err := c.ExplorationSchedule(); err != nil {
		return err
	}
	if _, err := c.TemperatureSchedule(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %v", err)
	}
	return nil
}

// MinReplaySize returns the number of transitions which must be in the
// replay buffer before learning starts
func (c Config) MinReplaySize() int {
	return int(c.MinReplayCapacityFraction * float64(c.ReplayCapacity))
}

// ExplorationSchedule returns the schedule of the training agent's ε,
// indexed by frame. Decay starts once the replay buffer holds enough
// transitions to learn from.
func (c Config) ExplorationSchedule() (schedule.Linear, error) {
	beginT := int(c.MinReplayCapacityFraction * float64(c.ReplayCapacity) *
		float64(c.NumActionRepeats))
	decaySteps := int(c.ExplorationEpsilonDecayFrameFraction *
		float64(c.NumIterations) * float64(c.NumTrainFrames))

	return schedule.NewLinear(beginT, decaySteps,
		c.ExplorationEpsilonBeginValue, c.ExplorationEpsilonEndValue)
}

// TemperatureSchedule returns the schedule of the replay buffer's
// sampling temperature, indexed by the number of transitions added.
// The temperature reaches its end value at the end of training.
func (c Config) TemperatureSchedule() (schedule.Linear, error) {
	beginT := c.MinReplaySize()
	endT := c.NumIterations * (c.NumTrainFrames / c.NumActionRepeats)

	return schedule.NewLinearEndT(beginT, endT, c.TempBeginValue,
		c.TempEndValue)
}

// ReplayConfig returns the configuration of the replay buffer
func (c Config) ReplayConfig() expreplay.Config {
	return expreplay.Config{
		Capacity:                   c.ReplayCapacity,
		UniformSampleProbability:   c.UniformSampleProbability,
		NormalizeWeights:           c.NormalizeWeights,
		ImportanceSamplingExponent: c.ImportanceSamplingExponent,
	}
}

// TrainConfig returns the configuration of the training agent
func (c Config) TrainConfig(numActions int) agent.TrainConfig {
	return agent.TrainConfig{
		NumActions:         numActions,
		BatchSize:          c.BatchSize,
		LearnPeriod:        c.LearnPeriod,
		TargetUpdatePeriod: c.TargetNetworkUpdatePeriod,
		MinReplaySize:      c.MinReplaySize(),
		NumActionRepeats:   c.NumActionRepeats,
	}
}

// ObservationShape returns the shape of stacked observations given the
// shape of a single observation
func (c Config) ObservationShape(frame []int) []int {
	return append([]int{c.NumStackedFrames}, frame...)
}

// LoopConfig returns the configuration of the training loop
func (c Config) LoopConfig(frame []int) experiment.LoopConfig {
	return experiment.LoopConfig{
		NumIterations:       c.NumIterations,
		NumTrainFrames:      c.NumTrainFrames,
		NumEvalFrames:       c.NumEvalFrames,
		NumActionRepeats:    c.NumActionRepeats,
		MaxFramesPerEpisode: c.MaxFramesPerEpisode,
		EvalFreq:            c.EvalFreq,
		SaveFreq:            c.SaveFreq,
		ObservationShape:    c.ObservationShape(frame),
		Seed:                c.Seeds().Loop,
	}
}

// Solver returns a new solver as configured. Gradients are clipped to
// GradErrorBound when using RMSProp.
func (c Config) Solver() (*solver.Solver, error) {
	t, err := solver.ParseType(c.Optimizer)
	if err != nil {
		return nil, err
	}

	if t == solver.RMSProp {
		return solver.NewRMSProp(c.LearningRate, c.OptimizerEpsilon, 0.95, 1,
			c.GradErrorBound)
	}
	return solver.New(t, c.LearningRate, c.OptimizerEpsilon, 1)
}

// Seeds are the seeds of each consumer of randomness in an experiment
type Seeds struct {
	Train   uint64
	Eval    uint64
	Loop    uint64
	Learner uint64
}

// Seeds splits the configured seed into one seed per consumer so that
// each consumer's random stream is independent of the others
func (c Config) Seeds() Seeds {
	rng := rand.New(rand.NewSource(c.Seed))
	return Seeds{
		Train:   rng.Uint64(),
		Eval:    rng.Uint64(),
		Loop:    rng.Uint64(),
		Learner: rng.Uint64(),
	}
}

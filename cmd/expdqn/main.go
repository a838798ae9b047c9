package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/agent/linear/qlearner"
	"github.com/samuelfneumann/expdqn/config"
	env "github.com/samuelfneumann/expdqn/environment"
	"github.com/samuelfneumann/expdqn/environment/classiccontrol/cartpole"
	"github.com/samuelfneumann/expdqn/environment/classiccontrol/mountaincar"
	"github.com/samuelfneumann/expdqn/environment/wrappers"
	"github.com/samuelfneumann/expdqn/experiment"
	"github.com/samuelfneumann/expdqn/experiment/checkpointer"
	"github.com/samuelfneumann/expdqn/expreplay"
	"github.com/samuelfneumann/expdqn/results"
)

var (
	cfg        = config.Default()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "expdqn",
	Short: "Double DQN with temperature-weighted experience replay",
	Long: `Trains a double DQN agent whose replay buffer samples transitions
from a softmax over their priorities, alternating training and
evaluation iterations and checkpointing between them.

Flags may also be set through EXPDQN_ environment variables or a
configuration file.`,
	SilenceUsage: true,
	RunE:         runExperiment,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "Configuration file (YAML, JSON or TOML)")

	// Environment
	flags.StringVar(&cfg.EnvironmentName, "environment_name", cfg.EnvironmentName, "Environment to train on (cartpole or mountaincar)")
	flags.IntVar(&cfg.MaxFramesPerEpisode, "max_frames_per_episode", cfg.MaxFramesPerEpisode, "Frames after which episodes are truncated (0 for no limit)")
	flags.IntVar(&cfg.NumActionRepeats, "num_action_repeats", cfg.NumActionRepeats, "Frames each action is repeated for")
	flags.IntVar(&cfg.NumStackedFrames, "num_stacked_frames", cfg.NumStackedFrames, "Observations stacked into each state")
	flags.Float64Var(&cfg.MaxAbsReward, "max_abs_reward", cfg.MaxAbsReward, "Bound on the magnitude of rewards (0 for no clipping)")

	// Replay
	flags.IntVar(&cfg.ReplayCapacity, "replay_capacity", cfg.ReplayCapacity, "Transitions stored in the replay buffer")
	flags.BoolVar(&cfg.CompressState, "compress_state", cfg.CompressState, "Compress states in the replay buffer")
	flags.Float64Var(&cfg.MinReplayCapacityFraction, "min_replay_capacity_fraction", cfg.MinReplayCapacityFraction, "Fraction of the replay buffer filled before learning")
	flags.Float64Var(&cfg.UniformSampleProbability, "uniform_sample_probability", cfg.UniformSampleProbability, "Weight of uniform sampling in the replay buffer")
	flags.BoolVar(&cfg.NormalizeWeights, "normalize_weights", cfg.NormalizeWeights, "Normalize importance sampling weights by their maximum")
	flags.Float64Var(&cfg.ImportanceSamplingExponent, "importance_sampling_exponent", cfg.ImportanceSamplingExponent, "Exponent of importance sampling weights")
	flags.Float64Var(&cfg.TempBeginValue, "temp_begin_value", cfg.TempBeginValue, "Initial sampling temperature")
	flags.Float64Var(&cfg.TempEndValue, "temp_end_value", cfg.TempEndValue, "Final sampling temperature")

	// Agent
	flags.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "Transitions per learning step")
	flags.IntVar(&cfg.LearnPeriod, "learn_period", cfg.LearnPeriod, "Actions between learning steps")
	flags.IntVar(&cfg.TargetNetworkUpdatePeriod, "target_network_update_period", cfg.TargetNetworkUpdatePeriod, "Actions between target updates")
	flags.Float64Var(&cfg.ExplorationEpsilonBeginValue, "exploration_epsilon_begin_value", cfg.ExplorationEpsilonBeginValue, "Initial training ε")
	flags.Float64Var(&cfg.ExplorationEpsilonEndValue, "exploration_epsilon_end_value", cfg.ExplorationEpsilonEndValue, "Final training ε")
	flags.Float64Var(&cfg.ExplorationEpsilonDecayFrameFraction, "exploration_epsilon_decay_frame_fraction", cfg.ExplorationEpsilonDecayFrameFraction, "Fraction of training frames over which ε decays")
	flags.Float64Var(&cfg.EvalExplorationEpsilon, "eval_exploration_epsilon", cfg.EvalExplorationEpsilon, "Evaluation ε")
	flags.Float64Var(&cfg.AdditionalDiscount, "additional_discount", cfg.AdditionalDiscount, "Discount applied on top of the environment's")
	flags.Float64Var(&cfg.InitStdDev, "init_std_dev", cfg.InitStdDev, "Standard deviation of the initial weights")

	// Optimizer
	flags.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "Optimizer (rmsprop, adam, vanilla)")
	flags.Float64Var(&cfg.LearningRate, "learning_rate", cfg.LearningRate, "Optimizer step size")
	flags.Float64Var(&cfg.OptimizerEpsilon, "optimizer_epsilon", cfg.OptimizerEpsilon, "Optimizer smoothing term")
	flags.Float64Var(&cfg.GradErrorBound, "grad_error_bound", cfg.GradErrorBound, "Gradient clipping bound for RMSProp")

	// Loop
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed of all randomness")
	flags.IntVar(&cfg.NumIterations, "num_iterations", cfg.NumIterations, "Number of training iterations")
	flags.IntVar(&cfg.NumTrainFrames, "num_train_frames", cfg.NumTrainFrames, "Training frames per iteration")
	flags.IntVar(&cfg.NumEvalFrames, "num_eval_frames", cfg.NumEvalFrames, "Evaluation frames per iteration")
	flags.IntVar(&cfg.SaveFreq, "save_freq", cfg.SaveFreq, "Iterations between checkpoints")
	flags.IntVar(&cfg.EvalFreq, "eval_freq", cfg.EvalFreq, "Iterations between evaluations")

	// Output
	flags.StringVar(&cfg.Name, "name", cfg.Name, "Name of the run")
	flags.StringVar(&cfg.ResultsCSVPath, "results_csv_path", cfg.ResultsCSVPath, "CSV file of results")
	flags.StringVar(&cfg.ResultsChartPath, "results_chart_path", cfg.ResultsChartPath, "HTML chart of results")
	flags.StringVar(&cfg.CheckpointDir, "checkpoint_dir", cfg.CheckpointDir, "Checkpoint directory (empty to disable)")
	flags.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Bind flags to viper for environment variable and file support
	viper.BindPFlags(flags)
	viper.SetEnvPrefix("EXPDQN")
	viper.AutomaticEnv()
}

// loadConfig merges flags, environment variables and the configuration
// file into cfg
func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("could not read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("could not decode config: %w", err)
	}
	return cfg.Validate()
}

func newLogger(runID string) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Str("run", runID).
		Logger(), nil
}

// environment returns the builder of the configured environment along
// with the shape of its unstacked observations and its number of
// actions
func environment() (env.Builder, []int, int, error) {
	var build env.Builder
	switch cfg.EnvironmentName {
	case config.Cartpole:
		// Episodes are truncated by the training loop
		build = cartpole.NewBuilder(0, 1.0)
	case config.MountainCar:
		build = mountaincar.NewBuilder(0, 1.0)
	default:
		return nil, nil, 0, fmt.Errorf("unknown environment %q",
			cfg.EnvironmentName)
	}

	e, err := build(0)
	if err != nil {
		return nil, nil, 0, err
	}
	frame := e.ObservationSpec().Shape
	numActions := e.ActionSpec().NumValues

	build = wrappers.Preprocess(build, cfg.NumActionRepeats,
		cfg.NumStackedFrames)
	return wrappers.ClipRewards(build, cfg.MaxAbsReward), frame, numActions, nil
}

func newWriter(runID string) (results.Writer, error) {
	var writers []results.Writer

	if cfg.ResultsCSVPath != "" {
		csv, err := results.NewCSV(cfg.ResultsCSVPath)
		if err != nil {
			return nil, err
		}
		writers = append(writers, csv)
	}

	if cfg.ResultsChartPath != "" {
		title := fmt.Sprintf("priority_%s (%s)", cfg.Name, runID)
		chart, err := results.NewChart(cfg.ResultsChartPath, title,
			[]string{"eval_episode_return", "train_episode_return"},
			[]string{"train_exploration_epsilon"},
			[]string{"sampling_temperature", "max_seen_priority"},
			[]string{"train_state_value"},
		)
		if err != nil {
			return nil, err
		}
		writers = append(writers, chart)
	}

	return results.NewMulti(writers...), nil
}

func newCheckpointer() (checkpointer.Checkpointer, error) {
	if cfg.CheckpointDir == "" {
		return checkpointer.NewNull(), nil
	}
	return checkpointer.NewFile(cfg.CheckpointDir, cfg.Name)
}

func newLoop(logger zerolog.Logger, runID string) (*experiment.Loop,
	error) {
	build, frame, numActions, err := environment()
	if err != nil {
		return nil, err
	}

	seeds := cfg.Seeds()
	features := 1
	for _, dim := range cfg.ObservationShape(frame) {
		features *= dim
	}

	s, err := cfg.Solver()
	if err != nil {
		return nil, err
	}
	learner, err := qlearner.New(qlearner.Config{
		Features:   features,
		NumActions: numActions,
		BatchSize:  cfg.BatchSize,
		Discount:   cfg.AdditionalDiscount,
		Solver:     s,
		InitStdDev: cfg.InitStdDev,
		Seed:       seeds.Learner,
	})
	if err != nil {
		return nil, err
	}

	temperature, err := cfg.TemperatureSchedule()
	if err != nil {
		return nil, err
	}
	replay, err := expreplay.NewTransitionReplay(cfg.ReplayConfig(),
		temperature, expreplay.NewCodec(cfg.CompressState),
		expreplay.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	exploration, err := cfg.ExplorationSchedule()
	if err != nil {
		return nil, err
	}
	train, err := agent.NewTrain(cfg.TrainConfig(numActions), learner,
		replay, exploration, seeds.Train, agent.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	eval, err := agent.NewEval(learner, numActions,
		cfg.EvalExplorationEpsilon, seeds.Eval)
	if err != nil {
		return nil, err
	}

	writer, err := newWriter(runID)
	if err != nil {
		return nil, err
	}
	ckpt, err := newCheckpointer()
	if err != nil {
		return nil, err
	}

	return experiment.NewLoop(cfg.LoopConfig(frame), build, train, eval,
		writer, ckpt, experiment.WithLogger(logger))
}

func runExperiment(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	logger, err := newLogger(runID)
	if err != nil {
		return err
	}

	logger.Info().
		Str("environment", cfg.EnvironmentName).
		Str("name", cfg.Name).
		Uint64("seed", cfg.Seed).
		Msg("starting experiment")

	loop, err := newLoop(logger, runID)
	if err != nil {
		return err
	}

	// Stop at the next iteration boundary on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Int("iteration", loop.Iteration()).
			Msg("experiment interrupted, resume from the last checkpoint")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info().Msg("experiment finished")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

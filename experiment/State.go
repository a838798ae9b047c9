package experiment

import (
	"fmt"

	"github.com/samuelfneumann/expdqn/agent"
	"github.com/samuelfneumann/expdqn/results"
)

// State is the complete state of a Loop at an iteration boundary. It
// is built whole by Snapshot and applied whole by Restore.
type State struct {
	// Iteration is the next iteration to run
	Iteration int

	TrainAgent agent.TrainState
	EvalAgent  agent.EvalState

	// RNG is the state of the random number generator from which
	// environment seeds are drawn
	RNG []byte

	// Writer is the state of the results Writer, if it is Stateful
	Writer results.State

	// EvalStats are the statistics of the most recent evaluation,
	// reported on iterations which do not evaluate
	EvalStats map[string]float64
}

// Snapshot returns the state of the Loop
func (l *Loop) Snapshot() (State, error) {
	trainState, err := l.train.Snapshot()
	if err != nil {
		return State{}, fmt.Errorf("snapshot: %v", err)
	}

	evalState, err := l.eval.Snapshot()
	if err != nil {
		return State{}, fmt.Errorf("snapshot: %v", err)
	}

	rng, err := l.source.MarshalBinary()
	if err != nil {
		return State{}, fmt.Errorf("snapshot: %v", err)
	}

	var writerState results.State
	if w, ok := l.writer.(results.Stateful); ok {
		writerState = w.State()
	}

	return State{
		Iteration:  l.iteration,
		TrainAgent: trainState,
		EvalAgent:  evalState,
		RNG:        rng,
		Writer:     writerState,
		EvalStats:  copyStats(l.evalStats),
	}, nil
}

// Restore sets the state of the Loop to a state returned by Snapshot
func (l *Loop) Restore(s State) error {
	if s.Iteration < 0 {
		return fmt.Errorf("restore: negative iteration %v", s.Iteration)
	}

	if err := l.train.Restore(s.TrainAgent); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := l.eval.Restore(s.EvalAgent); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := l.source.UnmarshalBinary(s.RNG); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	if w, ok := l.writer.(results.Stateful); ok {
		if err := w.SetState(s.Writer); err != nil {
			return fmt.Errorf("restore: %v", err)
		}
	}

	l.iteration = s.Iteration
	l.evalStats = emptyStats()
	for name, value := range s.EvalStats {
		l.evalStats[name] = value
	}

	return nil
}

func copyStats(stats map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(stats))
	for name, value := range stats {
		out[name] = value
	}
	return out
}

package expreplay

import (
	"fmt"
)

// State is the complete state of a TransitionReplay, used for
// checkpointing. Transitions and Priorities are ordered from oldest to
// newest.
type State struct {
	Capacity        int
	Transitions     []StoredTransition
	Priorities      []float64
	Added           int64
	MaxSeenPriority float64
}

// Snapshot returns the state of the buffer. The returned State shares
// no memory with the buffer.
func (t *TransitionReplay) Snapshot() State {
	size := t.Size()
	oldest := t.oldest()

	transitions := make([]StoredTransition, size)
	for i := range transitions {
		transitions[i] = copyStored(t.storage[t.slot(oldest+int64(i))])
	}

	return State{
		Capacity:        t.config.Capacity,
		Transitions:     transitions,
		Priorities:      t.Priorities(),
		Added:           t.added,
		MaxSeenPriority: t.maxSeenPriority,
	}
}

// Restore replaces the contents of the buffer with a State previously
// returned by Snapshot. Every stored state is decoded to check that it
// can be sampled later.
func (t *TransitionReplay) Restore(s State) error {
	if s.Capacity != t.config.Capacity {
		return &ReplayError{
			Op: "restore",
			Err: fmt.Errorf("capacity mismatch: want(%v) have(%v)",
				t.config.Capacity, s.Capacity),
		}
	}
	if len(s.Transitions) != len(s.Priorities) {
		return &ReplayError{
			Op: "restore",
			Err: fmt.Errorf("have %v transitions but %v priorities",
				len(s.Transitions), len(s.Priorities)),
		}
	}

	wantSize := s.Added
	if wantSize > int64(s.Capacity) {
		wantSize = int64(s.Capacity)
	}
	if s.Added < 0 || int64(len(s.Transitions)) != wantSize {
		return &ReplayError{
			Op: "restore",
			Err: fmt.Errorf("%v transitions stored after %v added with "+
				"capacity %v", len(s.Transitions), s.Added, s.Capacity),
		}
	}

	for _, p := range append([]float64{s.MaxSeenPriority}, s.Priorities...) {
		if !validPriority(p) {
			return &ReplayError{
				Op:  "restore",
				Err: fmt.Errorf("invalid priority %v", p),
			}
		}
	}

	for _, stored := range s.Transitions {
		if _, err := t.decode(stored); err != nil {
			return &ReplayError{Op: "restore", Err: err}
		}
	}

	storage := make([]StoredTransition, t.config.Capacity)
	priorities := make([]float64, t.config.Capacity)
	oldest := s.Added - int64(len(s.Transitions))
	for i := range s.Transitions {
		slot := t.slot(oldest + int64(i))
		storage[slot] = copyStored(s.Transitions[i])
		priorities[slot] = s.Priorities[i]
	}

	t.storage = storage
	t.priorities = priorities
	t.added = s.Added
	t.maxSeenPriority = s.MaxSeenPriority

	return nil
}

func copyStored(s StoredTransition) StoredTransition {
	s.StateBefore = copyEncoded(s.StateBefore)
	s.StateAfter = copyEncoded(s.StateAfter)
	return s
}

func copyEncoded(e EncodedState) EncodedState {
	e.Shape = append([]int(nil), e.Shape...)
	e.Data = append([]byte(nil), e.Data...)
	return e
}

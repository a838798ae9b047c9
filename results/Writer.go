// Package results implements sinks for the rows of statistics produced
// by each iteration of an experiment
package results

import (
	"errors"
	"fmt"
)

// Column is a single named value in a Row
type Column struct {
	Name  string
	Value float64
}

// Row is an ordered list of named values
type Row []Column

// Names returns the names of the columns of the Row, in order
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, c := range r {
		names[i] = c.Name
	}
	return names
}

// Get returns the value of the column with the given name
func (r Row) Get(name string) (float64, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return 0, false
}

// Copy returns a copy of the Row
func (r Row) Copy() Row {
	return append(Row(nil), r...)
}

// Writer is an append-only sink of Rows
type Writer interface {
	Write(r Row) error
	Close() error
}

// State is the state of a Writer, used for checkpointing
type State struct {
	// RowsWritten is the number of rows written
	RowsWritten int

	// Rows are the rows written, kept only by Writers which need them
	// after a restart
	Rows []Row

	// Children are the states of the Writers wrapped by a Writer
	Children []State
}

// Stateful is a Writer whose state can be saved and restored. After
// SetState, the Writer behaves as if only the rows written before the
// state was taken had ever been written.
type Stateful interface {
	Writer
	State() State
	SetState(s State) error
}

// Null is a Writer which discards all rows
type Null struct{}

// NewNull returns a new Null Writer
func NewNull() Null {
	return Null{}
}

// Write discards a row
func (Null) Write(Row) error {
	return nil
}

// Close does nothing
func (Null) Close() error {
	return nil
}

// Multi is a Writer which writes each Row to multiple Writers
type Multi struct {
	writers []Writer
}

// NewMulti returns a new Multi Writer
func NewMulti(writers ...Writer) *Multi {
	return &Multi{writers: writers}
}

// Write writes a Row to each wrapped Writer
func (m *Multi) Write(r Row) error {
	for _, w := range m.writers {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes each wrapped Writer
func (m *Multi) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the states of the wrapped Writers. Writers which are
// not Stateful have a zero State.
func (m *Multi) State() State {
	s := State{Children: make([]State, len(m.writers))}
	for i, w := range m.writers {
		if stateful, ok := w.(Stateful); ok {
			s.Children[i] = stateful.State()
		}
	}
	return s
}

// SetState sets the states of the wrapped Writers
func (m *Multi) SetState(s State) error {
	if len(s.Children) != len(m.writers) {
		return fmt.Errorf("setState: have states for %v writers, want %v",
			len(s.Children), len(m.writers))
	}

	for i, w := range m.writers {
		if stateful, ok := w.(Stateful); ok {
			if err := stateful.SetState(s.Children[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

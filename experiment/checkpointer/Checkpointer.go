// Package checkpointer implements durable storage for the state of an
// experiment so that an interrupted experiment can be resumed
package checkpointer

import (
	"errors"
)

// ErrNothingToRestore reports that no checkpoint has been saved
var ErrNothingToRestore = errors.New("no checkpoint to restore")

// Checkpointer saves and restores the state of an experiment. The
// format of saved states is opaque to callers: a state saved with Save
// must be restored with Restore into a value of the same type.
type Checkpointer interface {
	// Save persists a state, replacing any previously saved state
	Save(state interface{}) error

	// Restore loads the most recently saved state into the value
	// pointed to by into
	Restore(into interface{}) error

	// CanBeRestored returns whether a saved state exists
	CanBeRestored() bool
}

// Null is a Checkpointer which never saves anything
type Null struct{}

// NewNull returns a new Null Checkpointer
func NewNull() Null {
	return Null{}
}

// Save discards the state
func (Null) Save(interface{}) error {
	return nil
}

// Restore always fails, since nothing is ever saved
func (Null) Restore(interface{}) error {
	return ErrNothingToRestore
}

// CanBeRestored always returns false
func (Null) CanBeRestored() bool {
	return false
}

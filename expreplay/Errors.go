package expreplay

import "errors"

// ReplayError implements errors unique to an experience replay
// buffer.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ReplayError) Unwrap() error {
	return e.Err
}

// ErrInsufficientData reports that a replay buffer holds too few
// transitions to be sampled
var ErrInsufficientData = errors.New("insufficient data in replay buffer")

// ErrStaleIndex reports that an insertion index refers to a transition
// which is no longer, or not yet, stored in a replay buffer
var ErrStaleIndex = errors.New("stale replay index")

// ErrCompressionRoundTrip reports that an encoded state could not be
// decoded back into the state that was encoded
var ErrCompressionRoundTrip = errors.New("state codec round trip failed")

var errExpectedFirst = errors.New("expected the first timestep of an " +
	"episode")

// IsInsufficientData returns whether or not an error reports that
// there are insufficient samples in the buffer to sample from the
// buffer.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// IsStaleIndex returns whether or not an error reports a stale
// insertion index
func IsStaleIndex(err error) bool {
	return errors.Is(err, ErrStaleIndex)
}

// IsCompressionRoundTrip returns whether or not an error reports a
// state which could not be decoded
func IsCompressionRoundTrip(err error) bool {
	return errors.Is(err, ErrCompressionRoundTrip)
}

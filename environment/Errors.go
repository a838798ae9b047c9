package environment

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch reports that an environment produced observations
// whose shape is not the configured stacked-frame shape
var ErrShapeMismatch = errors.New("observation shape mismatch")

// ShapeError describes an observation of the wrong shape
type ShapeError struct {
	Want []int
	Have []int
}

// Error satisfies the error interface
func (s *ShapeError) Error() string {
	return fmt.Sprintf("%v: want(%v) have(%v)", ErrShapeMismatch, s.Want,
		s.Have)
}

// Unwrap returns ErrShapeMismatch so that errors.Is can be used
func (s *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// IsShapeMismatch returns whether or not an error reports an
// observation of the wrong shape
func IsShapeMismatch(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}

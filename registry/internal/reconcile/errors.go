package reconcile

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation is matched by every *InvariantViolation.
var ErrInvariantViolation = errors.New("reconcile: invariant violation")

// InvariantViolation reports the first place a sequence stops being dense
// and strictly ascending. Got is 0 when the sequence ended early.
type InvariantViolation struct {
	Position int // 0-based position in the merged record/gap walk
	Want     int
	Got      int
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("reconcile: invariant violated at position %d: want id %d, got %d",
		e.Position, e.Want, e.Got)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }

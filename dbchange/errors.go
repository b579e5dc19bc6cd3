package dbchange

import (
	"errors"
	"fmt"
)

// InvalidStateTransitionError is returned when an entity can't move between two states,
// or when an entity in a clean state reaches command construction
type InvalidStateTransitionError struct {
	Entity string
	From   EntityState
	To     EntityState
	Reason string
}

// NewInvalidStateTransitionError returns a new InvalidStateTransitionError
func NewInvalidStateTransitionError(entity string, from, to EntityState, reason string) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{
		Entity: entity,
		From:   from,
		To:     to,
		Reason: reason,
	}
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("riker: %s can't change from %s to %s: %s", e.Entity, e.From, e.To, e.Reason)
}

// IsInvalidStateTransition returns true if the error is an InvalidStateTransitionError
func IsInvalidStateTransition(err error) bool {
	var e *InvalidStateTransitionError
	return errors.As(err, &e)
}

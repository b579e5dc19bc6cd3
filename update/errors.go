package update

import (
	"errors"
	"fmt"
	"strings"
)

// ConcurrencyError is returned when a command expected to affect a row affected none.
// The row was changed or deleted since it was loaded. Entries are the entries whose
// commands were in the failing batch; they keep their pending changes.
type ConcurrencyError struct {
	Entries  []Entry
	Expected int64
	Affected int64
}

// NewConcurrencyError function
func NewConcurrencyError(entries []Entry, expected, affected int64) *ConcurrencyError {
	return &ConcurrencyError{
		Entries:  entries,
		Expected: expected,
		Affected: affected,
	}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"riker: database operation expected to affect %d row(s) but actually affected %d row(s); data may have been modified or deleted since entities were loaded",
		e.Expected,
		e.Affected,
	)
}

// IsConcurrencyError returns true if the error is a ConcurrencyError
func IsConcurrencyError(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}

// TooManyRowsAffectedError is returned when a command matched more rows than it was meant to.
// It means a key or condition isn't unique in the store.
type TooManyRowsAffectedError struct {
	Entries  []Entry
	Expected int64
	Affected int64
}

// NewTooManyRowsAffectedError function
func NewTooManyRowsAffectedError(entries []Entry, expected, affected int64) *TooManyRowsAffectedError {
	return &TooManyRowsAffectedError{
		Entries:  entries,
		Expected: expected,
		Affected: affected,
	}
}

func (e *TooManyRowsAffectedError) Error() string {
	return fmt.Sprintf(
		"riker: database operation expected to affect %d row(s) but actually affected %d row(s); check that keys and concurrency tokens are unique",
		e.Expected,
		e.Affected,
	)
}

// IsTooManyRowsAffected returns true if the error is a TooManyRowsAffectedError
func IsTooManyRowsAffected(err error) bool {
	var e *TooManyRowsAffectedError
	return errors.As(err, &e)
}

// DependencyCycleError is returned when changes to related rows can't be ordered
type DependencyCycleError struct {
	Entries     []Entry
	ForeignKeys []string
}

// NewDependencyCycleError function
func NewDependencyCycleError(entries []Entry, foreignKeys []string) *DependencyCycleError {
	return &DependencyCycleError{
		Entries:     entries,
		ForeignKeys: foreignKeys,
	}
}

func (e *DependencyCycleError) Error() string {
	names := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		names = append(names, fmt.Sprintf("%s (%s)", entry.GetTableMetadata().GetName(), entry.GetEntityState()))
	}
	return fmt.Sprintf(
		"riker: unable to save changes because a circular dependency was detected between %s through foreign keys %s",
		strings.Join(names, ", "),
		strings.Join(e.ForeignKeys, ", "),
	)
}

// IsDependencyCycle returns true if the error is a DependencyCycleError
func IsDependencyCycle(err error) bool {
	var e *DependencyCycleError
	return errors.As(err, &e)
}

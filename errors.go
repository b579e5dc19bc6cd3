package riker

import (
	"fmt"

	"github.com/skuid/riker/dbchange"
	"github.com/skuid/riker/tracking"
	"github.com/skuid/riker/update"
)

// ModelNotFoundError is returned when functions that expect to return an
// existing model cannot find one
const ModelNotFoundError Error = "riker: model not found"

// Error is a type of error that riker will return
type Error string

func (err Error) Error() string {
	return string(err)
}

// QueryError holds additional information about an SQL query failure
type QueryError struct {
	Err   error
	Query string
}

/*
NewQueryError returns a new QueryError object, populated with
extra information about which query failed
*/
func NewQueryError(err error, query string) *QueryError {
	return &QueryError{
		Err:   err,
		Query: query,
	}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: Query: %s", e.Err, e.Query)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsConcurrencyError reports a save that affected fewer rows than expected
func IsConcurrencyError(err error) bool {
	return update.IsConcurrencyError(err)
}

// IsTooManyRowsAffected reports a save that affected more rows than expected
func IsTooManyRowsAffected(err error) bool {
	return update.IsTooManyRowsAffected(err)
}

// IsDependencyCycle reports changes that couldn't be ordered
func IsDependencyCycle(err error) bool {
	return update.IsDependencyCycle(err)
}

// IsInvalidStateTransition reports a state change an entry doesn't allow
func IsInvalidStateTransition(err error) bool {
	return dbchange.IsInvalidStateTransition(err)
}

// IsIdentityConflict reports a second instance of an already tracked row
func IsIdentityConflict(err error) bool {
	return tracking.IsIdentityConflict(err)
}

// IsKeyModified reports a saved entity whose key was changed
func IsKeyModified(err error) bool {
	return tracking.IsKeyModified(err)
}

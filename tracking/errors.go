package tracking

import (
	"errors"
	"fmt"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
	validator "gopkg.in/go-playground/validator.v9"
)

// Error is a tracking error
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrInvalidOperation is returned when original values are requested for an entry that never had any
	ErrInvalidOperation Error = "riker: original values are only available for entries that were loaded or saved"
	// ErrConcurrentOperation is returned when a second operation starts on a state manager while one is running
	ErrConcurrentOperation Error = "riker: a second operation was started on this session before a previous operation completed"
	// ErrNotTracked is returned for operations on entities the state manager doesn't track
	ErrNotTracked Error = "riker: the entity is not tracked"
	// ErrNoDatabase is returned by SaveChanges when no database was configured
	ErrNoDatabase Error = "riker: no database configured for saving changes"
)

// IdentityConflictError is returned when two entries would track the same row
type IdentityConflictError struct {
	Table string
	Key   string
}

// NewIdentityConflictError function
func NewIdentityConflictError(table, key string) *IdentityConflictError {
	return &IdentityConflictError{
		Table: table,
		Key:   key,
	}
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("riker: another instance of %s with the key %s is already being tracked", e.Table, e.Key)
}

// IsIdentityConflict returns true if the error is an IdentityConflictError
func IsIdentityConflict(err error) bool {
	var e *IdentityConflictError
	return errors.As(err, &e)
}

// KeyModifiedError is returned when a saved entity's key was changed
type KeyModifiedError struct {
	Table string
	Field string
}

// NewKeyModifiedError function
func NewKeyModifiedError(table, field string) *KeyModifiedError {
	return &KeyModifiedError{
		Table: table,
		Field: field,
	}
}

func (e *KeyModifiedError) Error() string {
	return fmt.Sprintf("riker: the key property %s.%s is part of the key and can't be modified once the entity is saved", e.Table, e.Field)
}

// IsKeyModified returns true if the error is a KeyModifiedError
func IsKeyModified(err error) bool {
	var e *KeyModifiedError
	return errors.As(err, &e)
}

func prepareErrorOutputter(errs []error) string {
	errorStrings := []string{}
	for _, err := range errs {
		errorStrings = append(errorStrings, err.Error())
	}
	return "riker: unable to save changes: " + strings.Join(errorStrings, ", ")
}

func formatValidationError(err validator.FieldError) error {
	if err.Tag() == "required" {
		return fmt.Errorf("%v is required", err.Namespace())
	}
	return fmt.Errorf("%v check failed for %v", err.Tag(), err.Namespace())
}

func appendValidationErrors(result *multierror.Error, err error) *multierror.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return multierror.Append(result, err)
	}
	for _, fieldErr := range errs {
		result = multierror.Append(result, formatValidationError(fieldErr))
	}
	return result
}

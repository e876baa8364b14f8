package database

import (
	"errors"
	"fmt"
)

// Benign conditions. Callers treat these as successful no-ops.
var (
	// ErrDuplicateCandle is returned when (symbol, timeframe, open_time) is already stored
	ErrDuplicateCandle = errors.New("duplicate candle")

	// ErrInsufficientHistory is returned when a window is shorter than the required minimum
	ErrInsufficientHistory = errors.New("insufficient candle history")

	// ErrTransitionConflict is returned when a compare-and-set status transition finds the
	// prediction no longer in an allowed source state
	ErrTransitionConflict = errors.New("prediction status changed concurrently")
)

// DBError represents a database operation error with context
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DBError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// ValidationError represents a rejected input
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// WrapDBError wraps a store failure with operation context.
// Benign sentinels pass through unchanged so errors.Is keeps working at the boundary.
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsBenign(err) {
		return err
	}
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// IsBenign reports whether err is an expected no-op condition
func IsBenign(err error) bool {
	return errors.Is(err, ErrDuplicateCandle) ||
		errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrTransitionConflict)
}

// IsStoreFailure reports whether err came from the durable store
func IsStoreFailure(err error) bool {
	var dbErr *DBError
	return errors.As(err, &dbErr)
}

// NewNotFoundErrorWithID creates a new NotFoundError with an ID
func NewNotFoundErrorWithID(resource string, id interface{}) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidationErrorWithValue creates a new ValidationError with a value
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Value:  value,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason string) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
	}
}

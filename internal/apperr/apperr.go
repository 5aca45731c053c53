// Package apperr defines the error taxonomy shared by the storage,
// engine, and API layers. Errors are classified with sentinel values
// (errors.Is) or typed errors (errors.As) so the HTTP boundary can map
// each class to a status code without string matching.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks a missing data source, app, page, or record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentifier marks an exhausted identifier retry budget.
	ErrDuplicateIdentifier = errors.New("unable to generate a unique identifier")

	// ErrInvalidRequest marks a malformed request shape.
	ErrInvalidRequest = errors.New("invalid request")
)

// NotFound wraps ErrNotFound with the name of the missing entity.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// InvalidRequest wraps ErrInvalidRequest with a reason.
func InvalidRequest(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalidRequest)
}

// ValidationError carries the complete list of human-readable rule
// violations for one candidate record or schema payload.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// InvalidSchemaError marks a data-source schema from which no storage
// collection can be derived.
type InvalidSchemaError struct {
	Reason string
}

func (e *InvalidSchemaError) Error() string {
	return "invalid schema: " + e.Reason
}

// StorageError wraps an opaque storage-layer failure. It is always
// surfaced, never swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it already belongs to a
// client-facing class.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrDuplicateIdentifier) {
		return err
	}
	var ve *ValidationError
	var se *InvalidSchemaError
	if errors.As(err, &ve) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuditWrite marks a secondary write (audit trail, notification) that
	// failed after the primary write succeeded. It is logged, never surfaced.
	ErrAuditWrite = errors.New("audit write failed")

	// ErrAIService marks a failed or unparseable triage model call.
	ErrAIService = errors.New("ai service error")
)

// ValidationError rejects input before any store round-trip.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// FetchError wraps a failed read against the store.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// WriteError wraps a failed create/update/delete against the store.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Op, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Fetch wraps err as a FetchError, passing through nil and ErrNotFound.
func Fetch(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &FetchError{Op: op, Err: err}
}

// Write wraps err as a WriteError, passing through nil and ErrNotFound.
func Write(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &WriteError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

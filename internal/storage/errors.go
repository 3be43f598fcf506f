// ABOUTME: Common storage errors
// ABOUTME: Enables consistent error handling across storage implementations

package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvariantViolation is returned when an operation would break a
// recording invariant, such as opening a second pause.
var ErrInvariantViolation = errors.New("invariant violation")

// StoreError reports a transaction that could not be completed. The prior
// state is unchanged and the operation may be retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapStore wraps err in a StoreError unless it is already a domain error.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvariantViolation) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

package repository

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by point lookups with no matching record.
	ErrNotFound = errors.New("record not found")
	// ErrResourceExhausted marks a timeout acquiring a backend resource, so
	// callers can tell "backend is overloaded" from "backend is broken".
	ErrResourceExhausted = errors.New("storage resource exhausted")
)

// ConfigError reports invalid backend configuration (unknown mapped field,
// unsafe identifier, unsupported backend kind). It fails closed before any
// query executes.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "repository configuration: " + e.Reason
}

// StorageError wraps an underlying I/O or driver failure. The core never
// retries; retry policy belongs to the caller.
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

// classify turns a backend failure into the typed taxonomy. Deadline
// expirations map to resource exhaustion, everything else to StorageError.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrResourceExhausted, op)
	}
	return &StorageError{Op: op, Err: err}
}

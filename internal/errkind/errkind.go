// Package errkind defines the sentinel error kinds shared across every
// component of the telemetry core, so callers can distinguish recoverable
// conditions from ones they must act on with a single errors.Is check.
package errkind

import "errors"

var (
	// ErrNotFound indicates a requested entity (log record, segment, sensor,
	// job) does not exist.
	ErrNotFound = errors.New("errkind: not found")

	// ErrCorrupt indicates on-disk data failed a checksum or structural
	// validation. Recoverable at the stage that detects it (see C1 recovery).
	ErrCorrupt = errors.New("errkind: corrupt data")

	// ErrClosed indicates an operation was attempted on a component that has
	// already been shut down.
	ErrClosed = errors.New("errkind: closed")

	// ErrInvalidParams indicates caller-supplied input was rejected at a
	// component boundary. Never retried.
	ErrInvalidParams = errors.New("errkind: invalid params")

	// ErrResourceExhausted indicates an internal capacity limit (spool cap,
	// free-space floor) was reached. Handled internally; callers should not
	// normally see this surface outward.
	ErrResourceExhausted = errors.New("errkind: resource exhausted")

	// ErrCanceled indicates cooperative cancellation of a long-running job or
	// tick.
	ErrCanceled = errors.New("errkind: canceled")

	// ErrTransient indicates a storage operation failed in a way that is
	// expected to succeed on retry (connection drop, lock contention).
	ErrTransient = errors.New("errkind: transient storage error")
)

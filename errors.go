package jobq

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("jobq: no store configured")
	ErrStoreClosed     = errors.New("jobq: store closed")
	ErrMigrationFailed = errors.New("jobq: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("jobq: job not found")
	ErrDLQNotFound = errors.New("jobq: dlq entry not found")

	// Conflict errors.
	ErrJobAlreadyExists   = errors.New("jobq: job already exists")
	ErrDLQAlreadyReplayed = errors.New("jobq: dlq entry already replayed")

	// Enqueue errors. These are returned synchronously to the caller.
	ErrInvalidQueueName = errors.New("jobq: invalid queue name")
	ErrSerialization    = errors.New("jobq: payload serialization failed")

	// Registry errors.
	ErrNoHandlerRegistered = errors.New("jobq: no handler registered")
	ErrMissingHandlers     = errors.New("jobq: recognized queues without a handler")
	ErrDuplicateHandler    = errors.New("jobq: duplicate handler binding")

	// Handler failure classes.
	ErrTransientFailure = errors.New("jobq: transient handler failure")
	ErrPermanentFailure = errors.New("jobq: permanent handler failure")

	// State errors.
	ErrInvalidState = errors.New("jobq: invalid state transition")

	// ErrLeaseExpired means the caller no longer holds the claim on a job.
	// The store has already returned the job to pending or handed it to
	// another worker.
	ErrLeaseExpired = errors.New("jobq: lease expired")
)

// classified tags a handler error with a failure class while keeping the
// original error in the chain.
type classified struct {
	class error
	err   error
}

func (c *classified) Error() string { return c.err.Error() }

func (c *classified) Unwrap() []error { return []error{c.err, c.class} }

// Permanent marks err as non-retriable. A job whose handler returns a
// permanent error is dead-lettered on the first failure regardless of
// its remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: ErrPermanentFailure, err: err}
}

// Permanentf is a convenience for Permanent(fmt.Errorf(format, args...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// Transient marks err as retriable. Unclassified handler errors are
// already treated as transient; this is for handlers that want to be
// explicit.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: ErrTransientFailure, err: err}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure)
}

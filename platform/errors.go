package platform

import (
	"errors"
	"fmt"
)

// AuthError means the credential exchange for a platform failed. It is fatal
// for that platform's current cycle; the next cycle re-attempts from scratch.
type AuthError struct {
	Platform string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Platform, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UnavailableError means the retry budget for a request was exhausted. The
// platform's fetch for the cycle is abandoned; other platforms proceed.
type UnavailableError struct {
	Platform string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: unavailable after %d attempts: %v", e.Platform, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// MalformedError marks a single record that failed normalization (missing
// channel identity, unparsable timestamp). The record is skipped; the batch
// continues.
type MalformedError struct {
	Platform string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: malformed observation: %s", e.Platform, e.Reason)
}

// transientError tags an error as retryable under RetryPolicy.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so RetryPolicy.Do will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was tagged Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// TransientStatus reports whether an HTTP status code indicates a transient
// server-side failure worth retrying.
func TransientStatus(code int) bool {
	return code >= 500 || code == 429
}

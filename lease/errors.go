package lease

import (
	"errors"
	"fmt"

	jujuerrors "github.com/juju/errors"
)

// ErrConditionFailed is returned by a Store method when the remote
// conditional expression didn't hold: the record already existed
// (acquire), or its version didn't match the caller's (extend/release).
var ErrConditionFailed = jujuerrors.New("lease: condition failed")

// ErrLeaseLost is surfaced through LeaseGuard.Status once the background
// extender has observed ErrConditionFailed during a renewal: the TTL
// expired, or another holder overwrote the record. The caller must treat
// the guard as no longer protecting anything and re-acquire if needed.
var ErrLeaseLost = jujuerrors.New("lease: lost to expiry or another holder")

// ErrTimedOut is returned by Client.AcquireWithTimeout when the configured
// duration elapses before the lease is acquired.
var ErrTimedOut = jujuerrors.New("lease: timed out waiting to acquire")

// ErrTableMisconfigured is returned by Builder.BuildAndCheckDB when the
// remote table's schema or TTL configuration doesn't match what this
// package requires.
type ErrTableMisconfigured struct {
	Reason string
}

func (e *ErrTableMisconfigured) Error() string {
	return fmt.Sprintf("lease: table misconfigured: %s", e.Reason)
}

// TransientError wraps a Store failure the caller may retry: a network
// error, request throttling, or a 5xx from the remote table's service.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("lease: transient store error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError wraps a Store failure that won't resolve by retrying: bad
// credentials, a missing table, or some other permanent misconfiguration.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("lease: fatal store error: %v", e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is, or wraps, a *TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Package errs classifies pipeline failures per the error-handling
// taxonomy: transient failures are retried (in place, or via the
// sweeper's backoff), permanent failures are — today — retried
// identically, since the spec carries no dead-letter state. The
// classification exists so a future terminal state has a seam to hang
// off (Open Question (a) in DESIGN.md), not to change current
// behavior.
package errs

import "errors"

// Transient wraps an error known to be worth retrying (rate limits,
// network blips, lock contention).
type Transient struct {
	err error
}

func NewTransient(err error) *Transient { return &Transient{err: err} }
func (e *Transient) Error() string      { return e.err.Error() }
func (e *Transient) Unwrap() error      { return e.err }

// Permanent wraps an error the upstream rejected outright (e.g. invalid
// file). It is still retried under the same backoff today; callers that
// want to special-case it can with errors.As.
type Permanent struct {
	err error
}

func NewPermanent(err error) *Permanent { return &Permanent{err: err} }
func (e *Permanent) Error() string      { return e.err.Error() }
func (e *Permanent) Unwrap() error      { return e.err }

// IsTransient reports whether err (or something it wraps) is a
// Transient failure.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

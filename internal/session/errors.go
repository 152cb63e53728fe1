package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnregistered means Flush re-acquired the lock but the controller's
	// read step never ran, because another handler was bound to the unit of
	// work. The merge cannot be trusted and nothing was written.
	ErrUnregistered = errors.New("session handler unregistered")

	// ErrNotOpen is returned by Read when the lock is not held.
	ErrNotOpen = errors.New("session not open")

	// ErrLockHeld is returned by Open when the unit already holds the lock.
	ErrLockHeld = errors.New("session lock already held")

	// ErrFinished is returned once the unit of work has been flushed.
	ErrFinished = errors.New("session unit of work finished")
)

// ProtocolError reports misuse of the controller protocol.
type ProtocolError struct {
	// SessionID is the session the unit of work operates on.
	SessionID string

	// UnitID identifies the unit of work.
	UnitID string

	// Op is the operation that failed: open, read, replace or flush.
	Op string

	// Err is one of the sentinel errors above.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s session %q (unit=%s): %v", e.Op, e.SessionID, e.UnitID, e.Err)
}

// Unwrap returns the sentinel error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsUnregistered reports whether err is, or wraps, ErrUnregistered.
func IsUnregistered(err error) bool {
	return errors.Is(err, ErrUnregistered)
}

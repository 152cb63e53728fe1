package conflict

import (
	"errors"
	"fmt"
)

// ErrSessionConflict is matched by every ConflictError via errors.Is.
var ErrSessionConflict = errors.New("session conflict")

// ConflictError reports a key that was edited by this unit of work and by
// another writer, to different values, and that no rule resolved.
//
// It is never retried internally. Whether to retry the unit of work or to
// widen the rule table is the caller's decision.
type ConflictError struct {
	// Key is the conflicting top-level session key.
	Key string

	// Matched is true when a Fail rule matched the key, false when no rule
	// matched at all.
	Matched bool

	// Pattern is the pattern of the matching Fail rule, if any.
	Pattern string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Matched {
		return fmt.Sprintf("session conflict on key %q: rule %q forbids concurrent edits", e.Key, e.Pattern)
	}
	return fmt.Sprintf("session conflict on key %q: no conflict rule matches", e.Key)
}

// Is makes errors.Is(err, ErrSessionConflict) true for any ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrSessionConflict
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionConflict)
}

// ConflictKey returns the key carried by a ConflictError in err's chain.
func ConflictKey(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Key, true
	}
	return "", false
}

package store

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotLocked indicates a locked operation on an id whose lock is not held.
	ErrNotLocked = errors.New("session record is not locked")

	// ErrInvalidID indicates a session id outside the accepted alphabet.
	ErrInvalidID = errors.New("invalid session id")

	// ErrUnknownDriver indicates an unsupported store driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// idPattern is the session id alphabet: letters, digits, comma and dash,
// at most 128 characters.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9,-]{1,128}$`)

// ValidateID rejects ids that could escape a file store directory or
// collide with lock files.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

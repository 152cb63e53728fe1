// Package hook ties a session unit of work to the boundaries of the work
// that uses it: a function call (Run) or an HTTP request (Middleware).
//
// Both guarantee the unit is flushed exactly once when the work ends,
// including when it returns an error or panics.
package hook

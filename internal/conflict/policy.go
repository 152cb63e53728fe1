package conflict

import (
	"fmt"
	"strings"
)

// Policy is the outcome a rule assigns to a conflicting key.
type Policy int

const (
	// Fail aborts the flush with a ConflictError.
	Fail Policy = iota
	// Override keeps this unit of work's value.
	Override
	// Ignore keeps the concurrently persisted value.
	Ignore
)

var policyNames = map[Policy]string{
	Fail:     "fail",
	Override: "override",
	Ignore:   "ignore",
}

// String returns the lowercase policy name.
func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses "override", "ignore" or "fail" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "override":
		return Override, nil
	case "ignore":
		return Ignore, nil
	case "fail":
		return Fail, nil
	default:
		return Fail, fmt.Errorf("unknown conflict policy %q: must be one of override, ignore, fail", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("unknown conflict policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so policies can be
// written by name in YAML and JSON configuration.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

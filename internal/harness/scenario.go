package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/store"
)

// Scenario is a scripted interleaving of units of work on one session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Driver is the record store: memory (default), sqlite or file.
	Driver string `yaml:"driver,omitempty"`

	// Session is the session id. Default: "sess-1".
	Session string `yaml:"session,omitempty"`

	// Rules is the conflict rule table.
	Rules []conflict.Rule `yaml:"rules,omitempty"`

	// Initial is written to the store before the first step. Nil means no
	// record.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// ExpectFinal is the persisted snapshot after the last step.
	ExpectFinal map[string]any `yaml:"expect_final,omitempty"`

	// ExpectAbsent asserts that no record is left after the last step.
	ExpectAbsent bool `yaml:"expect_absent,omitempty"`
}

// Step is one operation of one unit of work.
type Step struct {
	// Unit names the unit of work, e.g. "A".
	Unit string `yaml:"unit"`

	// Op is the operation; see the Op constants.
	Op string `yaml:"op"`

	// Key is the session key for set and unset.
	Key string `yaml:"key,omitempty"`

	// Value is the value for set.
	Value any `yaml:"value,omitempty"`

	// ExpectError is "", "conflict" or "unregistered".
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpBegin            = "begin"
	OpStart            = "start"
	OpSet              = "set"
	OpUnset            = "unset"
	OpClear            = "clear"
	OpFlush            = "flush"
	OpBindPessimistic  = "bind_pessimistic"
	OpClosePessimistic = "close_pessimistic"
)

// Step outcomes, as recorded in the trace.
const (
	OutcomeOK           = "ok"
	OutcomeConflict     = "conflict"
	OutcomeUnregistered = "unregistered"
	OutcomeError        = "error"
)

// DefaultSession is the session id used when a scenario names none.
const DefaultSession = "sess-1"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	switch s.Driver {
	case "", store.DriverMemory, store.DriverSQLite, store.DriverFile:
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
	if s.Session != "" {
		if err := store.ValidateID(s.Session); err != nil {
			return err
		}
	}
	if _, err := conflict.NewTable(s.Rules...); err != nil {
		return err
	}
	if s.ExpectAbsent && s.ExpectFinal != nil {
		return fmt.Errorf("expect_final and expect_absent are mutually exclusive")
	}

	begun := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step, begun); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, begun map[string]bool) error {
	if step.Unit == "" {
		return fmt.Errorf("unit is required")
	}
	switch step.Op {
	case OpBegin:
		if begun[step.Unit] {
			return fmt.Errorf("unit %q begun twice", step.Unit)
		}
		begun[step.Unit] = true
	case OpSet, OpUnset:
		if step.Key == "" {
			return fmt.Errorf("%s requires a key", step.Op)
		}
	case OpStart, OpClear, OpFlush, OpBindPessimistic, OpClosePessimistic:
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Op != OpBegin && !begun[step.Unit] {
		return fmt.Errorf("unit %q used before begin", step.Unit)
	}
	if step.Op == OpSet && step.Value == nil {
		return fmt.Errorf("set requires a value")
	}
	switch step.ExpectError {
	case "", OutcomeConflict, OutcomeUnregistered:
	default:
		return fmt.Errorf("unknown expect_error %q", step.ExpectError)
	}
	return nil
}

package harness

import (
	"encoding/json"

	"github.com/roach88/optisess/internal/snapshot"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int             `json:"step"`
	Unit    string          `json:"unit"`
	Op      string          `json:"op"`
	Key     string          `json:"key,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Outcome string          `json:"outcome"`

	// Snapshot is the working copy returned by a start step.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	// Error is the message of an unclassified failure.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: every step had the expected
	// outcome and the final record matched.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the persisted snapshot after the last step, nil if there is
	// no record.
	Final snapshot.Map `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}

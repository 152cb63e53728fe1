package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string          `json:"scenario_name"`
	Driver       string          `json:"driver"`
	Trace        []TraceEvent    `json:"trace"`
	Final        json.RawMessage `json:"final"`
}

// MarshalTrace renders the trace of a result as indented JSON. Snapshot
// keys are sorted, so equal runs give identical bytes.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	final := json.RawMessage("null")
	if result.Final != nil {
		raw, err := result.Final.MarshalJSON()
		if err != nil {
			return nil, err
		}
		final = raw
	}
	snap := TraceSnapshot{
		ScenarioName: scenario.Name,
		Driver:       driverName(scenario.Driver),
		Trace:        result.Trace,
		Final:        final,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)
	return nil
}

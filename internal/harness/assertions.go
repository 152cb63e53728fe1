package harness

import (
	"fmt"

	"github.com/roach88/optisess/internal/snapshot"
)

// checkOutcome compares a step's outcome with its expect_error.
func checkOutcome(result *Result, step Step, event TraceEvent) {
	want := step.ExpectError
	if want == "" {
		want = OutcomeOK
	}
	if event.Outcome == want {
		return
	}
	msg := fmt.Sprintf("step %d (%s %s): expected %s, got %s", event.Step, step.Unit, step.Op, want, event.Outcome)
	if event.Error != "" {
		msg += ": " + event.Error
	}
	result.AddError(msg)
}

// assertFinal checks the persisted record against expect_final and
// expect_absent.
func assertFinal(s *Scenario, final snapshot.Map) []string {
	var errs []string
	if s.ExpectAbsent && final != nil {
		errs = append(errs, fmt.Sprintf("final: expected no record, got %s", render(final)))
	}
	if s.ExpectFinal != nil {
		want, err := snapshot.FromAnyMap(s.ExpectFinal)
		if err != nil {
			return append(errs, fmt.Sprintf("final: invalid expect_final: %v", err))
		}
		switch {
		case final == nil:
			errs = append(errs, fmt.Sprintf("final: expected %s, got no record", render(want)))
		case !snapshot.MapEqual(want, final):
			errs = append(errs, fmt.Sprintf("final: expected %s, got %s", render(want), render(final)))
		}
	}
	return errs
}

func render(m snapshot.Map) string {
	data, err := m.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

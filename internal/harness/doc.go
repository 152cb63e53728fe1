// Package harness runs session scenarios: scripted interleavings of several
// units of work on one session id.
//
// A scenario is a YAML file listing steps. Each step names the unit of work
// it acts for and one operation (begin, start, set, unset, clear, flush,
// bind_pessimistic, close_pessimistic). Steps run one after another in a
// single goroutine, so the order of the steps is the interleaving under
// test. The run produces a trace that can be compared against a golden
// file, and the persisted record is checked against expect_final.
//
// Example:
//
//	name: disjoint_edits
//	description: Two units edit different keys from the same baseline.
//	initial: {a: 1}
//	steps:
//	  - {unit: A, op: begin}
//	  - {unit: B, op: begin}
//	  - {unit: A, op: start}
//	  - {unit: B, op: start}
//	  - {unit: A, op: set, key: a, value: 42}
//	  - {unit: B, op: set, key: b, value: 24}
//	  - {unit: A, op: flush}
//	  - {unit: B, op: flush}
//	expect_final: {a: 42, b: 24}
//
// A step that waits for a lock held by a pessimistic handler of the same
// scenario can never proceed; it fails after StepTimeout instead.
package harness

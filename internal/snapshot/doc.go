// Package snapshot provides the value model for session snapshots.
//
// A session snapshot is a Map from string keys to Values. A Value is either
// a scalar (Null, String, Int, Float, Bool), a List, or a nested Map. The
// structure is recursive and carries no ordering: use SortedKeys for
// deterministic iteration.
//
// Absent keys are a distinct state. Slot pairs a Value with a Set flag so
// that "unset" is never confused with a present Null or an empty Map.
//
// This package imports nothing internal. Every other internal package
// builds on it.
package snapshot

package snapshot

import "math"

// Equal reports whether a and b are deeply equal.
//
// Type and value must both match: Int(1) is not Float(1), a Map is never
// equal to a scalar, and Null is only equal to Null. Maps compare by key
// set and per-key equality, lists element by element. NaN equals NaN, so
// every snapshot equals itself.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && (av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv))))
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		return ok && MapEqual(av, bv)
	default:
		return false
	}
}

// MapEqual reports whether two snapshots hold the same keys with deeply
// equal values. A nil Map equals an empty one.
func MapEqual(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// SlotEqual compares two slots. Unset equals only unset.
func SlotEqual(a, b Slot) bool {
	if a.Set != b.Set {
		return false
	}
	if !a.Set {
		return true
	}
	return Equal(a.Value, b.Value)
}

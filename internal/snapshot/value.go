package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Value is a sealed interface over the values a session may hold.
// Only Null, String, Int, Float, Bool, List and Map implement it.
type Value interface {
	snapshotValue()
}

// Null is an explicitly stored null. It is present, and therefore never
// equal to an unset key.
type Null struct{}

func (Null) snapshotValue() {}

// String is a string value.
type String string

func (String) snapshotValue() {}

// Int is an integer value. Int(1) and Float(1) are different values.
type Int int64

func (Int) snapshotValue() {}

// Float is a floating point value.
type Float float64

func (Float) snapshotValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) snapshotValue() {}

// List is an ordered sequence of values.
type List []Value

func (List) snapshotValue() {}

// Map is a keyed collection of values. A Map at the top level is a
// session snapshot.
type Map map[string]Value

func (Map) snapshotValue() {}

// Slot is the content of one key in a snapshot: either a Value (Set is
// true) or nothing at all.
type Slot struct {
	Value Value
	Set   bool
}

// Unset is the Slot of an absent key.
var Unset = Slot{}

// Present wraps v in a set Slot.
func Present(v Value) Slot {
	return Slot{Value: v, Set: true}
}

// Slot returns the Slot stored under key.
func (m Map) Slot(key string) Slot {
	v, ok := m[key]
	if !ok {
		return Unset
	}
	return Present(v)
}

// Put stores s under key. An unset Slot deletes the key.
func (m Map) Put(key string, s Slot) {
	if !s.Set {
		delete(m, key)
		return
	}
	m[key] = s.Value
}

// SortedKeys returns the keys in ascending order.
func (m Map) SortedKeys() []string {
	return slices.Sorted(maps.Keys(m))
}

// UnionKeys returns the sorted union of the keys of all maps.
func UnionKeys(ms ...Map) []string {
	seen := make(map[string]struct{})
	for _, m := range ms {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Clone returns a deep copy of m. A nil Map clones to nil.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue returns a deep copy of v.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case Map:
		return val.Clone()
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = CloneValue(elem)
		}
		return out
	default:
		// Scalars are immutable.
		return v
	}
}

// MarshalJSON implements json.Marshaler with keys in SortedKeys order and
// no HTML escaping.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Integer literals decode to
// Int, every other number to Float.
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Map)
	if !ok {
		return fmt.Errorf("snapshot must be a JSON object, got %s", KindOf(v))
	}
	*m = obj
	return nil
}

// MarshalValue marshals a single Value to JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return marshalString(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Map:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown snapshot value type: %T", v)
	}
}

// marshalString encodes s without HTML escaping, so "<" stays "<".
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	// Encoder appends a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalValue decodes JSON into a Value.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// KindOf names the dynamic type of v for error messages.
func KindOf(v Value) string {
	switch v.(type) {
	case nil:
		return "unset"
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

package snapshot

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"s":    "x",
		"i":    7,
		"u":    uint32(8),
		"f":    2.5,
		"b":    false,
		"n":    nil,
		"num":  json.Number("12"),
		"numf": json.Number("1e3"),
		"l":    []any{1, "two"},
		"m":    map[any]any{"k": 1, 2: "v"},
	})
	require.NoError(t, err)

	want := Map{
		"s":    String("x"),
		"i":    Int(7),
		"u":    Int(8),
		"f":    Float(2.5),
		"b":    Bool(false),
		"n":    Null{},
		"num":  Int(12),
		"numf": Float(1000),
		"l":    List{Int(1), String("two")},
		"m":    Map{"k": Int(1), "2": String("v")},
	}
	assert.True(t, Equal(want, v), "got %#v", v)
}

func TestFromAnyErrors(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	_, err = FromAny(uint64(math.MaxUint64))
	assert.Error(t, err)

	_, err = FromAny([]any{1, struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list[1]")
}

func TestFromAnyMap(t *testing.T) {
	m, err := FromAnyMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.NotNil(t, m)

	_, err = FromAnyMap("scalar")
	assert.Error(t, err)
}

func TestToAnyRoundTrip(t *testing.T) {
	in := Map{
		"a": Int(1),
		"b": Map{"c": List{Float(0.5), Null{}}},
	}
	back, err := FromAny(ToAny(in))
	require.NoError(t, err)
	assert.True(t, Equal(in, back))
}

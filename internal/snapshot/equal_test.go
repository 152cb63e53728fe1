package snapshot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("a"), String("a"), true},
		{"different string", String("a"), String("b"), false},
		{"int vs float same magnitude", Int(1), Float(1), false},
		{"int vs string", Int(1), String("1"), false},
		{"null vs null", Null{}, Null{}, true},
		{"null vs empty string", Null{}, String(""), false},
		{"null vs empty map", Null{}, Map{}, false},
		{"empty map vs empty map", Map{}, Map{}, true},
		{"map vs scalar", Map{"a": Int(1)}, Int(1), false},
		{"scalar vs map", String("x"), Map{"x": String("x")}, false},
		{"nested equal", Map{"a": Map{"b": List{Int(1)}}}, Map{"a": Map{"b": List{Int(1)}}}, true},
		{"nested differs", Map{"a": Map{"b": Int(1)}}, Map{"a": Map{"b": Int(2)}}, false},
		{"extra key", Map{"a": Int(1)}, Map{"a": Int(1), "b": Int(2)}, false},
		{"missing key", Map{"a": Int(1), "b": Int(2)}, Map{"a": Int(1)}, false},
		{"list order matters", List{Int(1), Int(2)}, List{Int(2), Int(1)}, false},
		{"list vs map", List{}, Map{}, false},
		{"nil vs nil", nil, nil, true},
		{"nil vs null", nil, Null{}, false},
		{"nan vs nan", Float(math.NaN()), Float(math.NaN()), true},
		{"nan vs number", Float(math.NaN()), Float(0), false},
		{"nested nan", Map{"f": List{Float(math.NaN())}}, Map{"f": List{Float(math.NaN())}}, true},
		{"infinity", Float(math.Inf(1)), Float(math.Inf(1)), true},
		{"signed infinities", Float(math.Inf(1)), Float(math.Inf(-1)), false},
		{"signed zero", Float(0), Float(math.Copysign(0, -1)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "Equal must be symmetric")
		})
	}
}

func TestMapEqualNilAndEmpty(t *testing.T) {
	assert.True(t, MapEqual(nil, Map{}))
	assert.False(t, MapEqual(nil, Map{"a": Null{}}))
}

func TestSlotEqual(t *testing.T) {
	assert.True(t, SlotEqual(Unset, Unset))
	assert.False(t, SlotEqual(Unset, Present(Null{})), "unset is not a present null")
	assert.False(t, SlotEqual(Present(Map{}), Unset), "unset is not an empty map")
	assert.True(t, SlotEqual(Present(Int(3)), Present(Int(3))))
	assert.False(t, SlotEqual(Present(Int(3)), Present(Float(3))))
}

package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisess/internal/snapshot"
)

func TestClassify(t *testing.T) {
	one := snapshot.Present(snapshot.Int(1))
	two := snapshot.Present(snapshot.Int(2))
	three := snapshot.Present(snapshot.Int(3))
	null := snapshot.Present(snapshot.Null{})
	unset := snapshot.Unset

	tests := []struct {
		name               string
		base, mine, theirs snapshot.Slot
		want               Kind
	}{
		{"untouched", one, one, one, Unchanged},
		{"untouched absent", unset, unset, unset, Unchanged},
		{"same edit both sides", one, two, two, Agreed},
		{"only theirs", one, one, two, Theirs},
		{"only mine", one, two, one, Mine},
		{"pairwise distinct", one, two, three, Conflict},
		{"mine added", unset, one, unset, Mine},
		{"theirs deleted", one, one, unset, Theirs},
		{"null is not unset", unset, null, unset, Mine},
		{"added differently", unset, one, two, Conflict},
		{"delete vs edit", one, unset, two, Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.base, tt.mine, tt.theirs))
		})
	}
}

func TestDiffSortedAndComplete(t *testing.T) {
	changes := Diff(
		snapshot.Map{"b": snapshot.Int(1), "a": snapshot.Int(1)},
		snapshot.Map{"a": snapshot.Int(2), "b": snapshot.Int(1)},
		snapshot.Map{"a": snapshot.Int(1), "c": snapshot.Int(1), "b": snapshot.Int(1)},
	)
	require.Len(t, changes, 3)
	assert.Equal(t, "a", changes[0].Key)
	assert.Equal(t, Mine, changes[0].Kind)
	assert.Equal(t, Unchanged, changes[1].Kind)
	assert.Equal(t, Theirs, changes[2].Kind)

	sum := Summary(changes)
	assert.Equal(t, 1, sum[Mine])
	assert.Equal(t, 1, sum[Theirs])
	assert.Equal(t, 1, sum[Unchanged])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "conflict", Conflict.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

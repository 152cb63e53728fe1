package merge

import (
	"fmt"

	"github.com/roach88/optisess/internal/snapshot"
)

// Kind classifies one key of a three-way comparison.
type Kind int

const (
	// Unchanged: nobody edited the key.
	Unchanged Kind = iota
	// Agreed: both sides edited the key to the same value.
	Agreed
	// Theirs: only the other writer edited the key.
	Theirs
	// Mine: only this unit of work edited the key.
	Mine
	// Conflict: baseline, local and remote are pairwise distinct.
	Conflict
)

var kindNames = [...]string{
	Unchanged: "unchanged",
	Agreed:    "agreed",
	Theirs:    "theirs",
	Mine:      "mine",
	Conflict:  "conflict",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Change is the classification of a single key.
type Change struct {
	Key    string
	Kind   Kind
	Base   snapshot.Slot
	Mine   snapshot.Slot
	Theirs snapshot.Slot
}

// Classify compares the three slots of one key. Unset slots take part in
// the comparison: deleting a key is an edit like any other.
func Classify(base, mine, theirs snapshot.Slot) Kind {
	switch {
	case snapshot.SlotEqual(mine, theirs):
		if snapshot.SlotEqual(base, mine) {
			return Unchanged
		}
		return Agreed
	case snapshot.SlotEqual(base, mine):
		return Theirs
	case snapshot.SlotEqual(base, theirs):
		return Mine
	default:
		return Conflict
	}
}

// Diff classifies every key of baseline ∪ local ∪ remote, in sorted key
// order.
func Diff(baseline, local, remote snapshot.Map) []Change {
	keys := snapshot.UnionKeys(baseline, local, remote)
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		c := Change{
			Key:    k,
			Base:   baseline.Slot(k),
			Mine:   local.Slot(k),
			Theirs: remote.Slot(k),
		}
		c.Kind = Classify(c.Base, c.Mine, c.Theirs)
		changes = append(changes, c)
	}
	return changes
}

// Summary counts changes per kind.
func Summary(changes []Change) map[Kind]int {
	out := make(map[Kind]int)
	for _, c := range changes {
		out[c.Kind]++
	}
	return out
}

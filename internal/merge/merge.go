package merge

import (
	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/snapshot"
)

// Resolver decides true conflicts. *conflict.Table implements it.
type Resolver interface {
	Resolve(key string, base, mine, theirs snapshot.Slot) (snapshot.Slot, error)
}

// Result is the outcome of a merge.
type Result struct {
	// Final is the snapshot to persist (or, when NeedWrite is false, the
	// snapshot that is already persisted).
	Final snapshot.Map

	// NeedWrite is false when this unit of work made no edit.
	NeedWrite bool

	// RemoteChanged is true when another writer committed since baseline.
	// Only meaningful when NeedWrite is true.
	RemoteChanged bool

	// Changes holds the per-key classification of a three-way merge. It is
	// empty for the two shortcut cases.
	Changes []Change

	// Resolved lists the conflicts settled by the Resolver, with Mine or
	// Theirs carrying the chosen side.
	Resolved []Resolution
}

// Resolution records the value the Resolver chose for a conflicting key.
type Resolution struct {
	Key    string
	Chosen snapshot.Slot
}

// Merge reconciles local with remote relative to baseline.
//
// A nil Resolver resolves nothing, so any true conflict fails. On error no
// partial result is returned.
func Merge(baseline, local, remote snapshot.Map, r Resolver) (Result, error) {
	if snapshot.MapEqual(baseline, local) {
		return Result{Final: remote}, nil
	}

	if snapshot.MapEqual(remote, baseline) {
		return Result{Final: local, NeedWrite: true}, nil
	}

	if r == nil {
		r = (*conflict.Table)(nil)
	}

	res := Result{
		Final:         make(snapshot.Map),
		NeedWrite:     true,
		RemoteChanged: true,
		Changes:       Diff(baseline, local, remote),
	}
	for _, c := range res.Changes {
		switch c.Kind {
		case Unchanged, Agreed, Theirs:
			res.Final.Put(c.Key, c.Theirs)
		case Mine:
			res.Final.Put(c.Key, c.Mine)
		case Conflict:
			chosen, err := r.Resolve(c.Key, c.Base, c.Mine, c.Theirs)
			if err != nil {
				return Result{}, err
			}
			res.Final.Put(c.Key, chosen)
			res.Resolved = append(res.Resolved, Resolution{Key: c.Key, Chosen: chosen})
		}
	}
	return res, nil
}

// Package merge implements the three-way merge used at flush time.
//
// Inputs are three snapshots of the same session:
//
//   - baseline: what this unit of work read at its start
//   - local:    what this unit of work wants to persist
//   - remote:   what is persisted now, re-read under the lock
//
// The merge is pure. It never touches the store and never retries.
//
// Decision order:
//  1. local equals baseline: nothing to write, remote is adopted as is.
//  2. remote equals baseline: nobody else wrote, local overwrites.
//  3. otherwise every key in baseline ∪ local ∪ remote is classified
//     (see Classify) and true conflicts go to a Resolver.
package merge

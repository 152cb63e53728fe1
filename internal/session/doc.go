// Package session runs the optimistic read/merge/flush protocol for one
// session id per unit of work.
//
// A unit of work begins with Manager.Begin, which returns a Controller.
// The controller takes the store lock twice: briefly to read the baseline,
// and briefly at Flush to re-read the persisted record, merge it with the
// caller's working copy and write the result. The caller edits the working
// copy while no lock is held.
//
// Lifecycle of one unit of work:
//
//	Idle --Open--> LockHeld --Read--> LockReleased
//	LockReleased --Flush--> Flushing --> Done
//
// Flush re-acquires the lock through the unit's Binding. If another handler
// was bound in the meantime the controller cannot vouch for the merge and
// Flush fails with ErrUnregistered.
//
// A Controller belongs to one unit of work and is not safe for concurrent
// use. The Manager is shared and safe for concurrent use.
package session

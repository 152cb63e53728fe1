// Package store provides record stores for session snapshots.
//
// A record store keeps one opaque byte record per session id and an
// exclusive lock per id. The session controller holds that lock only for
// two short windows per unit of work (read, then flush) and drives every
// store through the RecordStore interface:
//
//	Open(id)          acquire the lock, blocking until free or ctx is done
//	ReadLocked(id)    current record, nil when absent
//	WriteLocked(id)   replace the record
//	DeleteLocked(id)  remove the record
//	Release(id)       make writes visible and release the lock
//
// ReadLocked, WriteLocked, DeleteLocked and Release fail with ErrNotLocked
// unless the lock on id is held.
//
// # Drivers
//
//   - memory: process-local map, for tests and single-process embedding
//   - file:   one file per session plus an advisory flock(2) lock file,
//     usable by several processes sharing a directory
//   - sqlite: SQLite in WAL mode. The lock window is an IMMEDIATE write
//     transaction, so Release commits atomically.
//
// # Database Configuration (sqlite)
//
//   - WAL mode: concurrent readers during a lock window
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait up to 5 seconds for another process's window
//   - _txlock=immediate: the write lock is taken when the window opens,
//     not at the first write
package store

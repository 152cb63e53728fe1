package store

import (
	"context"
	"fmt"
	"io"
	"time"
)

// RecordStore is the keyed storage the session controller runs against.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Open acquires the exclusive lock on id.
	Open(ctx context.Context, id string) error

	// ReadLocked returns the record for id, or nil if there is none.
	ReadLocked(ctx context.Context, id string) ([]byte, error)

	// WriteLocked replaces the record for id.
	WriteLocked(ctx context.Context, id string, data []byte) error

	// DeleteLocked removes the record for id. Deleting an absent record
	// is not an error.
	DeleteLocked(ctx context.Context, id string) error

	// Release publishes the window's writes and releases the lock.
	Release(ctx context.Context, id string) error
}

// Lister enumerates stored session ids in sorted order.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Pruner removes records that were not written since before. Records
// whose lock is held are skipped.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Store is what the drivers in this package provide.
type Store interface {
	RecordStore
	Lister
	Pruner
	io.Closer
}

// Driver names accepted by OpenDriver.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// OpenDriver opens a store by driver name. path is the database file for
// sqlite, the directory for file, and ignored for memory.
func OpenDriver(driver, path string) (Store, error) {
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return OpenFile(path)
	case DriverSQLite, "":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w %q: must be one of %s, %s, %s",
			ErrUnknownDriver, driver, DriverSQLite, DriverFile, DriverMemory)
	}
}

// View reads the record for id inside its own short lock window.
func View(ctx context.Context, s RecordStore, id string) (data []byte, err error) {
	if err := s.Open(ctx, id); err != nil {
		return nil, err
	}
	defer func() {
		if relErr := s.Release(ctx, id); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return s.ReadLocked(ctx, id)
}

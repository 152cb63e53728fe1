package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	filePrefix     = "sess_"
	lockSuffix     = ".lock"
	tempSuffix     = ".tmp"
	lockRetryDelay = 10 * time.Millisecond
)

// File stores each session as dir/sess_<id> and guards it with an advisory
// lock on dir/sess_<id>.lock. Processes sharing dir exclude each other
// through flock(2); goroutines of one process through the lock table.
type File struct {
	dir   string
	locks *lockTable

	mu    sync.Mutex
	flock map[string]*flock.Flock
}

var _ Store = (*File)(nil)

// OpenFile uses dir as a session directory, creating it if needed.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &File{dir: dir, locks: newLockTable(), flock: make(map[string]*flock.Flock)}, nil
}

// Dir returns the session directory.
func (f *File) Dir() string { return f.dir }

func (f *File) dataPath(id string) string { return filepath.Join(f.dir, filePrefix+id) }
func (f *File) lockPath(id string) string { return f.dataPath(id) + lockSuffix }

// Open implements RecordStore.
func (f *File) Open(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := f.locks.acquire(ctx, id); err != nil {
		return err
	}

	fl := flock.New(f.lockPath(id))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		_ = f.locks.release(id)
		return fmt.Errorf("open %q: %w", id, err)
	}

	f.mu.Lock()
	f.flock[id] = fl
	f.mu.Unlock()
	return nil
}

// ReadLocked implements RecordStore.
func (f *File) ReadLocked(_ context.Context, id string) ([]byte, error) {
	if err := f.checkLocked("read", id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.dataPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", id, err)
	}
	return data, nil
}

// WriteLocked implements RecordStore. The record is replaced by rename so
// readers never see a partial file.
func (f *File) WriteLocked(_ context.Context, id string, data []byte) error {
	if err := f.checkLocked("write", id); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, filePrefix+id+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("write %q: %w", id, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", id, err)
	}
	if err := os.Rename(tmpName, f.dataPath(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", id, err)
	}
	return nil
}

// DeleteLocked implements RecordStore.
func (f *File) DeleteLocked(_ context.Context, id string) error {
	if err := f.checkLocked("delete", id); err != nil {
		return err
	}
	if err := os.Remove(f.dataPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %q: %w", id, err)
	}
	return nil
}

// Release implements RecordStore.
func (f *File) Release(_ context.Context, id string) error {
	f.mu.Lock()
	fl, ok := f.flock[id]
	delete(f.flock, id)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("release %q: %w", id, ErrNotLocked)
	}

	unlockErr := fl.Unlock()
	if err := f.locks.release(id); err != nil {
		return err
	}
	if unlockErr != nil {
		return fmt.Errorf("release %q: %w", id, unlockErr)
	}
	return nil
}

// List implements Lister.
func (f *File) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		if id, ok := recordID(e); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune implements Pruner. A record is stale when its file was last
// modified before the cutoff.
func (f *File) Prune(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}

	pruned := 0
	for _, e := range entries {
		id, ok := recordID(e)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if !f.locks.tryAcquire(id) {
			continue
		}
		removed, err := f.pruneOne(id)
		if relErr := f.locks.release(id); relErr != nil && err == nil {
			err = relErr
		}
		if err != nil {
			return pruned, err
		}
		if removed {
			pruned++
		}
	}
	return pruned, nil
}

func (f *File) pruneOne(id string) (bool, error) {
	fl := flock.New(f.lockPath(id))
	locked, err := fl.TryLock()
	if err != nil || !locked {
		return false, err
	}
	defer fl.Unlock()

	if err := os.Remove(f.dataPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("prune %q: %w", id, err)
	}
	return true, nil
}

// Close implements io.Closer.
func (f *File) Close() error { return nil }

func (f *File) checkLocked(op, id string) error {
	f.mu.Lock()
	_, ok := f.flock[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s %q: %w", op, id, ErrNotLocked)
	}
	return nil
}

// recordID extracts the session id from a data file entry.
func recordID(e fs.DirEntry) (string, bool) {
	name := e.Name()
	if e.IsDir() || !strings.HasPrefix(name, filePrefix) {
		return "", false
	}
	if strings.HasSuffix(name, lockSuffix) || strings.HasSuffix(name, tempSuffix) {
		return "", false
	}
	id := strings.TrimPrefix(name, filePrefix)
	if ValidateID(id) != nil {
		return "", false
	}
	return id, true
}

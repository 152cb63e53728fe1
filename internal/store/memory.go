package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local RecordStore.
type Memory struct {
	locks *lockTable

	mu      sync.RWMutex
	records map[string]memoryRecord

	// now is replaceable for prune tests.
	now func() time.Time
}

type memoryRecord struct {
	data      []byte
	updatedAt time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		locks:   newLockTable(),
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

// Open implements RecordStore.
func (m *Memory) Open(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return m.locks.acquire(ctx, id)
}

// ReadLocked implements RecordStore.
func (m *Memory) ReadLocked(_ context.Context, id string) ([]byte, error) {
	if err := m.checkLocked("read", id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(rec.data), nil
}

// WriteLocked implements RecordStore.
func (m *Memory) WriteLocked(_ context.Context, id string, data []byte) error {
	if err := m.checkLocked("write", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = memoryRecord{data: bytes.Clone(data), updatedAt: m.now()}
	return nil
}

// DeleteLocked implements RecordStore.
func (m *Memory) DeleteLocked(_ context.Context, id string) error {
	if err := m.checkLocked("delete", id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Release implements RecordStore.
func (m *Memory) Release(_ context.Context, id string) error {
	return m.locks.release(id)
}

// List implements Lister.
func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune implements Pruner.
func (m *Memory) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.RLock()
	var stale []string
	for id, rec := range m.records {
		if rec.updatedAt.Before(before) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	pruned := 0
	for _, id := range stale {
		if !m.locks.tryAcquire(id) {
			continue
		}
		m.mu.Lock()
		if rec, ok := m.records[id]; ok && rec.updatedAt.Before(before) {
			delete(m.records, id)
			pruned++
		}
		m.mu.Unlock()
		if err := m.locks.release(id); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

// Close implements io.Closer. The records are kept.
func (m *Memory) Close() error { return nil }

func (m *Memory) checkLocked(op, id string) error {
	if !m.locks.isHeld(id) {
		return fmt.Errorf("%s %q: %w", op, id, ErrNotLocked)
	}
	return nil
}

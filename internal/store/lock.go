package store

import (
	"context"
	"fmt"
	"sync"
)

// lockTable is a set of per-id exclusive locks whose acquisition can be
// abandoned when a context ends.
//
// Each id has a one-slot channel: sending into it acquires, receiving
// releases. Slots are created on demand and dropped once nobody holds or
// waits for them.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int // holder plus waiters
	held bool
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

// acquire blocks until id is free or ctx is done.
func (t *lockTable) acquire(ctx context.Context, id string) error {
	t.mu.Lock()
	slot, ok := t.slots[id]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		t.slots[id] = slot
	}
	slot.refs++
	t.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		t.mu.Lock()
		slot.held = true
		t.mu.Unlock()
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		slot.refs--
		t.dropIfIdle(id, slot)
		t.mu.Unlock()
		return fmt.Errorf("acquire lock on %q: %w", id, ctx.Err())
	}
}

// tryAcquire takes the lock on id only if it is free right now.
func (t *lockTable) tryAcquire(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[id]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		t.slots[id] = slot
	}
	select {
	case slot.ch <- struct{}{}:
		slot.refs++
		slot.held = true
		return true
	default:
		t.dropIfIdle(id, slot)
		return false
	}
}

// release frees the lock on id.
func (t *lockTable) release(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[id]
	if !ok || !slot.held {
		return fmt.Errorf("release %q: %w", id, ErrNotLocked)
	}
	slot.held = false
	<-slot.ch
	slot.refs--
	t.dropIfIdle(id, slot)
	return nil
}

// isHeld reports whether the lock on id is currently held.
func (t *lockTable) isHeld(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slots[id]
	return ok && slot.held
}

// dropIfIdle removes an unused slot. Caller holds t.mu.
func (t *lockTable) dropIfIdle(id string, slot *lockSlot) {
	if slot.refs == 0 && !slot.held && t.slots[id] == slot {
		delete(t.slots, id)
	}
}

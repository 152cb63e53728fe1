package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/optisess/internal/snapshot"
)

// PessimisticHandler is the classic save handler: it holds the lock from
// Open until Close and writes its working copy unconditionally, so a
// concurrent writer's changes are overwritten.
type PessimisticHandler struct {
	m  *Manager
	id string

	held  bool
	local snapshot.Map
}

var _ Handler = (*PessimisticHandler)(nil)

// NewPessimisticHandler returns a handler for id backed by m's store and
// codec.
func (m *Manager) NewPessimisticHandler(id string) *PessimisticHandler {
	return &PessimisticHandler{m: m, id: id}
}

// Open implements Handler.
func (h *PessimisticHandler) Open(ctx context.Context) error {
	if h.held {
		return fmt.Errorf("open session %q: %w", h.id, ErrLockHeld)
	}
	if err := h.m.store.Open(ctx, h.id); err != nil {
		return fmt.Errorf("open session %q: %w", h.id, err)
	}
	h.held = true
	return nil
}

// Read implements Handler. The lock stays held.
func (h *PessimisticHandler) Read(ctx context.Context) (snapshot.Map, error) {
	if !h.held {
		return nil, fmt.Errorf("read session %q: %w", h.id, ErrNotOpen)
	}
	data, err := h.m.store.ReadLocked(ctx, h.id)
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", h.id, err)
	}
	h.local = snapshot.Map{}
	if data != nil {
		if h.local, err = h.m.codec.Decode(data); err != nil {
			return nil, fmt.Errorf("read session %q: %w", h.id, err)
		}
	}
	return h.local, nil
}

// Local returns the working copy, or nil before Read.
func (h *PessimisticHandler) Local() snapshot.Map { return h.local }

// Held reports whether the handler holds the lock.
func (h *PessimisticHandler) Held() bool { return h.held }

// Close writes the working copy, or deletes the record if it is empty, and
// releases the lock. Closing a handler that is not open does nothing.
func (h *PessimisticHandler) Close(ctx context.Context) error {
	if !h.held {
		return nil
	}
	var err error
	if len(h.local) == 0 {
		err = h.m.store.DeleteLocked(ctx, h.id)
	} else {
		var data []byte
		if data, err = h.m.codec.Encode(h.local); err == nil {
			err = h.m.store.WriteLocked(ctx, h.id, data)
		}
	}
	if err != nil {
		err = fmt.Errorf("close session %q: %w", h.id, err)
	}
	h.held = false
	if relErr := h.m.store.Release(ctx, h.id); relErr != nil {
		err = errors.Join(err, fmt.Errorf("release session %q: %w", h.id, relErr))
	}
	return err
}

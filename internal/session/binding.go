package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/optisess/internal/snapshot"
)

// Handler is a save handler: something that can take the lock on a session
// and read it. A Controller is a Handler, and so is a PessimisticHandler.
type Handler interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (snapshot.Map, error)
}

// Binding holds the handler registered for one unit of work. Starting the
// session always goes through the binding, so swapping the handler
// mid-lifecycle is visible to the controller at flush time.
type Binding struct {
	mu sync.Mutex
	h  Handler
}

// Bind registers h and returns the previously bound handler.
func (b *Binding) Bind(h Handler) Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.h
	b.h = h
	return prev
}

// Handler returns the bound handler, or nil.
func (b *Binding) Handler() Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h
}

// Start opens and reads the session through the bound handler.
func (b *Binding) Start(ctx context.Context) (snapshot.Map, error) {
	h := b.Handler()
	if h == nil {
		return nil, fmt.Errorf("start session: no handler bound: %w", ErrUnregistered)
	}
	if err := h.Open(ctx); err != nil {
		return nil, err
	}
	return h.Read(ctx)
}

package testutil

import (
	"context"
	"sync"

	"github.com/roach88/optisess/internal/session"
)

// RecordingSink keeps every protocol event it receives.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingSink struct {
	mu     sync.Mutex
	events []session.Event
}

var _ session.EventSink = (*RecordingSink)(nil)

// Emit implements session.EventSink. The snapshot is copied.
func (s *RecordingSink) Emit(_ context.Context, e session.Event) {
	e.Snapshot = e.Snapshot.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns the recorded events in order.
func (s *RecordingSink) Events() []session.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (s *RecordingSink) Kinds() []session.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

// Reset discards the recorded events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

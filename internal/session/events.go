package session

import (
	"context"
	"log/slog"

	"github.com/roach88/optisess/internal/snapshot"
)

// EventKind names a protocol event.
type EventKind string

const (
	EventReadStart  EventKind = "read-start"
	EventReadFinal  EventKind = "read-final"
	EventFlushStart EventKind = "flush-start"
	EventFlushFinal EventKind = "flush-final"
)

// Event is emitted at the edges of the read and flush steps.
type Event struct {
	Kind      EventKind
	SessionID string
	UnitID    string

	// Snapshot is the working copy at flush-start, the persisted record at
	// read-final and flush-final, and nil at read-start.
	Snapshot snapshot.Map
}

// EventSink receives protocol events. Emit must not retain Snapshot.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(context.Context, Event) {}

type slogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink that logs each event at Debug level.
func NewSlogSink(logger *slog.Logger) EventSink {
	return slogSink{logger: logger}
}

// Emit implements EventSink.
func (s slogSink) Emit(ctx context.Context, e Event) {
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.String("session_id", e.SessionID),
		slog.String("unit_id", e.UnitID),
	}
	if e.Snapshot != nil {
		data, err := e.Snapshot.MarshalJSON()
		if err != nil {
			attrs = append(attrs, slog.String("snapshot_error", err.Error()))
		} else {
			attrs = append(attrs, slog.String("snapshot", string(data)))
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, string(e.Kind), attrs...)
}

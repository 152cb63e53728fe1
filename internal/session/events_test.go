package session_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/optisess/internal/session"
	"github.com/roach88/optisess/internal/snapshot"
)

func TestSlogSink_LogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := session.NewSlogSink(logger)

	sink.Emit(context.Background(), session.Event{
		Kind:      session.EventFlushFinal,
		SessionID: "abc",
		UnitID:    "unit-7",
		Snapshot:  snapshot.Map{"b": snapshot.Int(2), "a": snapshot.String("x")},
	})

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "msg=flush-final")
	assert.Contains(t, out, "session_id=abc")
	assert.Contains(t, out, "unit_id=unit-7")
	assert.Contains(t, out, `snapshot="{\"a\":\"x\",\"b\":2}"`)
}

func TestSlogSink_SilentAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	session.NewSlogSink(logger).Emit(context.Background(), session.Event{Kind: session.EventReadStart})

	assert.Empty(t, buf.String())
}

func TestSlogSink_OmitsNilSnapshot(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	session.NewSlogSink(logger).Emit(context.Background(), session.Event{Kind: session.EventReadStart, SessionID: "abc"})

	assert.NotContains(t, buf.String(), "snapshot=")
}

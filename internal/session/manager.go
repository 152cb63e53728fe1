package session

import (
	"log/slog"

	"github.com/roach88/optisess/internal/codec"
	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/store"
)

// RuleSource supplies the conflict rule table. A unit of work reads it once
// when it begins.
type RuleSource interface {
	Table() *conflict.Table
}

type staticRules struct {
	t *conflict.Table
}

func (s staticRules) Table() *conflict.Table { return s.t }

// StaticRules returns a RuleSource that always yields t. A nil table
// resolves no conflicts.
func StaticRules(t *conflict.Table) RuleSource {
	return staticRules{t: t}
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	// Codec encodes snapshots for the store. Default: codec.JSON.
	Codec codec.Codec

	// Rules supplies the conflict rule table. Default: no rules, so every
	// true conflict fails.
	Rules RuleSource

	// Sink receives protocol events. Default: NopSink.
	Sink EventSink

	// IDs generates unit-of-work ids. Default: UUIDv7Generator.
	IDs IDGenerator

	// Logger receives merge diagnostics. Default: discard.
	Logger *slog.Logger
}

// Manager holds what all units of work share. It is read-only after
// construction and safe for concurrent use.
type Manager struct {
	store  store.RecordStore
	codec  codec.Codec
	rules  RuleSource
	sink   EventSink
	ids    IDGenerator
	logger *slog.Logger
}

// NewManager creates a Manager over s.
func NewManager(s store.RecordStore, opts Options) *Manager {
	m := &Manager{
		store:  s,
		codec:  opts.Codec,
		rules:  opts.Rules,
		sink:   opts.Sink,
		ids:    opts.IDs,
		logger: opts.Logger,
	}
	if m.codec == nil {
		m.codec = codec.JSON{}
	}
	if m.rules == nil {
		m.rules = StaticRules(nil)
	}
	if m.sink == nil {
		m.sink = NopSink{}
	}
	if m.ids == nil {
		m.ids = UUIDv7Generator{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m
}

// Store returns the record store.
func (m *Manager) Store() store.RecordStore { return m.store }

// Codec returns the snapshot codec.
func (m *Manager) Codec() codec.Codec { return m.codec }

// Rules returns the current conflict rule table.
func (m *Manager) Rules() *conflict.Table { return m.rules.Table() }

// Begin starts a unit of work on sessionID. The returned controller is
// bound as the unit's handler and starts in state Idle.
func (m *Manager) Begin(sessionID string) *Controller {
	c := &Controller{
		m:       m,
		id:      sessionID,
		unitID:  m.ids.Generate(),
		rules:   m.rules.Table(),
		binding: &Binding{},
	}
	c.binding.Bind(c)
	return c
}

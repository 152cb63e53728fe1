package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/merge"
	"github.com/roach88/optisess/internal/snapshot"
)

// State is the protocol state of a unit of work.
type State int

const (
	Idle State = iota
	LockHeld
	LockReleased
	Flushing
	Done
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LockHeld:
		return "lock-held"
	case LockReleased:
		return "lock-released"
	case Flushing:
		return "flushing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Controller runs the protocol for one unit of work.
type Controller struct {
	m       *Manager
	id      string
	unitID  string
	rules   *conflict.Table
	binding *Binding

	state State
	held  bool

	// baseline is captured by the first successful Read and never changed.
	baseline    snapshot.Map
	hasBaseline bool
	local       snapshot.Map

	// remote and readLatch are set by Read during a flush cycle.
	remote    snapshot.Map
	readLatch bool

	flushed bool
}

var _ Handler = (*Controller)(nil)

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// UnitID returns the unit-of-work id.
func (c *Controller) UnitID() string { return c.unitID }

// State returns the protocol state.
func (c *Controller) State() State { return c.state }

// Binding returns the unit's handler binding.
func (c *Controller) Binding() *Binding { return c.binding }

// Rules returns the rule table captured when the unit began.
func (c *Controller) Rules() *conflict.Table { return c.rules }

// Local returns the working copy, or nil before the first Read. The caller
// may mutate it freely.
func (c *Controller) Local() snapshot.Map { return c.local }

// Baseline returns a copy of the baseline, or nil before the first Read.
func (c *Controller) Baseline() snapshot.Map { return c.baseline.Clone() }

// Replace swaps the working copy for s. A nil or empty s clears the
// session: the record is deleted at Flush.
func (c *Controller) Replace(s snapshot.Map) error {
	if c.state == Done {
		return c.protocolError("replace", ErrFinished)
	}
	if !c.hasBaseline {
		return c.protocolError("replace", ErrNotOpen)
	}
	if s == nil {
		s = snapshot.Map{}
	}
	c.local = s
	return nil
}

// Clear empties the working copy, so Flush deletes the record.
func (c *Controller) Clear() error {
	return c.Replace(snapshot.Map{})
}

// Start opens and reads the session through the unit's binding and returns
// the working copy.
func (c *Controller) Start(ctx context.Context) (snapshot.Map, error) {
	if c.state == Done {
		return nil, c.protocolError("start", ErrFinished)
	}
	return c.binding.Start(ctx)
}

// Open acquires the store lock for the session.
func (c *Controller) Open(ctx context.Context) error {
	if c.state == Done {
		return c.protocolError("open", ErrFinished)
	}
	if c.held {
		return c.protocolError("open", ErrLockHeld)
	}
	if err := c.m.store.Open(ctx, c.id); err != nil {
		return fmt.Errorf("open session %q: %w", c.id, err)
	}
	c.held = true
	if c.state != Flushing {
		c.state = LockHeld
	}
	return nil
}

// Read reads the persisted record under the lock.
//
// Outside a flush cycle the first Read captures the baseline and a working
// copy, later Reads keep both, and the lock is released before returning.
// Inside a flush cycle the record becomes the remote snapshot and the lock
// is kept for the merge.
func (c *Controller) Read(ctx context.Context) (snapshot.Map, error) {
	if c.state == Done {
		return nil, c.protocolError("read", ErrFinished)
	}
	if !c.held {
		return nil, c.protocolError("read", ErrNotOpen)
	}
	c.emit(ctx, EventReadStart, nil)

	persisted, err := c.readLocked(ctx)
	if err != nil {
		if c.state != Flushing {
			err = errors.Join(err, c.release(ctx))
			c.state = LockReleased
		}
		return nil, err
	}
	c.readLatch = true
	c.emit(ctx, EventReadFinal, persisted)

	if c.state == Flushing {
		c.remote = persisted
		return persisted, nil
	}

	if !c.hasBaseline {
		c.baseline = persisted
		c.hasBaseline = true
		c.local = persisted.Clone()
	}
	if err := c.release(ctx); err != nil {
		return nil, err
	}
	c.state = LockReleased
	return c.local, nil
}

// Flush reconciles the working copy with the persisted record and writes
// the result. It runs once per unit of work; later calls return nil.
//
// Flush does nothing if the session was never read, and takes no lock if
// the working copy still equals the baseline. Otherwise an empty working
// copy deletes the record without merging.
//
// The working copy is compared in its stored form: it is passed through the
// codec first, so Float(2) under the JSON codec compares as Int(2).
func (c *Controller) Flush(ctx context.Context) error {
	if c.flushed {
		return nil
	}
	c.flushed = true
	defer func() { c.state = Done }()

	if c.held {
		if err := c.release(ctx); err != nil {
			return err
		}
	}

	if !c.hasBaseline {
		c.m.logger.DebugContext(ctx, "flush skipped: session never read",
			"session_id", c.id, "unit_id", c.unitID)
		return nil
	}

	c.emit(ctx, EventFlushStart, c.local)

	local, err := c.stored(c.local)
	if err != nil {
		return err
	}
	if snapshot.MapEqual(c.baseline, local) {
		c.emit(ctx, EventFlushFinal, c.baseline)
		return nil
	}
	if len(local) == 0 {
		return c.clearRecord(ctx)
	}

	c.state = Flushing
	c.readLatch = false
	c.remote = nil
	if _, err := c.binding.Start(ctx); err != nil {
		return errors.Join(err, c.releaseIfHeld(ctx))
	}
	if !c.readLatch {
		return errors.Join(c.protocolError("flush", ErrUnregistered), c.releaseIfHeld(ctx))
	}

	res, err := merge.Merge(c.baseline, local, c.remote, c.rules)
	if err != nil {
		if key, ok := conflict.ConflictKey(err); ok {
			c.m.logger.InfoContext(ctx, "flush failed: session conflict",
				"session_id", c.id, "unit_id", c.unitID, "key", key)
		}
		return errors.Join(fmt.Errorf("flush session %q: %w", c.id, err), c.release(ctx))
	}
	c.logMerge(ctx, res)

	if res.NeedWrite {
		data, err := c.m.codec.Encode(res.Final)
		if err == nil {
			err = c.m.store.WriteLocked(ctx, c.id, data)
		}
		if err != nil {
			return errors.Join(fmt.Errorf("flush session %q: %w", c.id, err), c.release(ctx))
		}
	}
	if err := c.release(ctx); err != nil {
		return err
	}

	c.local = res.Final
	c.emit(ctx, EventFlushFinal, res.Final)
	return nil
}

// stored returns s as it reads back from the store.
func (c *Controller) stored(s snapshot.Map) (snapshot.Map, error) {
	data, err := c.m.codec.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("flush session %q: %w", c.id, err)
	}
	out, err := c.m.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("flush session %q: %w", c.id, err)
	}
	return out, nil
}

func (c *Controller) clearRecord(ctx context.Context) error {
	if err := c.m.store.Open(ctx, c.id); err != nil {
		return fmt.Errorf("clear session %q: %w", c.id, err)
	}
	c.held = true
	if err := c.m.store.DeleteLocked(ctx, c.id); err != nil {
		return errors.Join(fmt.Errorf("clear session %q: %w", c.id, err), c.release(ctx))
	}
	if err := c.release(ctx); err != nil {
		return err
	}
	c.m.logger.DebugContext(ctx, "session cleared", "session_id", c.id, "unit_id", c.unitID)
	c.emit(ctx, EventFlushFinal, snapshot.Map{})
	return nil
}

func (c *Controller) readLocked(ctx context.Context) (snapshot.Map, error) {
	data, err := c.m.store.ReadLocked(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", c.id, err)
	}
	if data == nil {
		return snapshot.Map{}, nil
	}
	s, err := c.m.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", c.id, err)
	}
	return s, nil
}

func (c *Controller) release(ctx context.Context) error {
	c.held = false
	if err := c.m.store.Release(ctx, c.id); err != nil {
		return fmt.Errorf("release session %q: %w", c.id, err)
	}
	return nil
}

func (c *Controller) releaseIfHeld(ctx context.Context) error {
	if !c.held {
		return nil
	}
	return c.release(ctx)
}

func (c *Controller) logMerge(ctx context.Context, res merge.Result) {
	if !c.m.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{
		"session_id", c.id,
		"unit_id", c.unitID,
		"need_write", res.NeedWrite,
		"remote_changed", res.RemoteChanged,
	}
	counts := merge.Summary(res.Changes)
	for kind := merge.Unchanged; kind <= merge.Conflict; kind++ {
		if n := counts[kind]; n > 0 {
			attrs = append(attrs, kind.String(), n)
		}
	}
	c.m.logger.DebugContext(ctx, "session merged", attrs...)

	for _, r := range res.Resolved {
		rule, _ := c.rules.Match(r.Key)
		c.m.logger.DebugContext(ctx, "conflict resolved",
			"session_id", c.id, "key", r.Key, "rule", rule.String())
	}
}

func (c *Controller) emit(ctx context.Context, kind EventKind, s snapshot.Map) {
	c.m.sink.Emit(ctx, Event{Kind: kind, SessionID: c.id, UnitID: c.unitID, Snapshot: s})
}

func (c *Controller) protocolError(op string, err error) error {
	return &ProtocolError{SessionID: c.id, UnitID: c.unitID, Op: op, Err: err}
}

package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/session"
	"github.com/roach88/optisess/internal/snapshot"
	"github.com/roach88/optisess/internal/store"
	"github.com/roach88/optisess/internal/testutil"
)

// StepTimeout bounds how long one step may wait for the session lock.
var StepTimeout = 5 * time.Second

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	session  string
	store    store.Store
	manager  *session.Manager
	units    map[string]*unit
	logger   *slog.Logger
}

type unit struct {
	c     *session.Controller
	local snapshot.Map
	p     *session.PessimisticHandler
}

// Run executes a scenario against a fresh store of its driver.
//
// Execution flow:
// 1. Open an empty store and write the initial record
// 2. Execute steps in order, classifying each outcome
// 3. Read the final record
// 4. Compare outcomes and the final record with the expectations
//
// The returned error reports a harness failure (store could not be opened,
// malformed values). Expectation mismatches are reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, cleanup, err := openStore(scenario.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driverName(scenario.Driver), err)
	}
	defer cleanup()
	defer st.Close()

	table, err := conflict.NewTable(scenario.Rules...)
	if err != nil {
		return nil, err
	}

	sessionID := scenario.Session
	if sessionID == "" {
		sessionID = DefaultSession
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		scenario: scenario,
		session:  sessionID,
		store:    st,
		manager: session.NewManager(st, session.Options{
			Rules:  session.StaticRules(table),
			IDs:    testutil.NewSequenceGenerator("unit"),
			Logger: logger,
		}),
		units:  make(map[string]*unit),
		logger: logger,
	}

	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to write initial record: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s %s): %w", i, step.Unit, step.Op, err)
		}
		result.AddTrace(event)
		checkOutcome(result, step, event)
	}

	for name, u := range h.units {
		if u.p != nil && u.p.Held() {
			return nil, fmt.Errorf("pessimistic handler of unit %q still open at end of scenario", name)
		}
	}

	final, err := h.readFinal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final record: %w", err)
	}
	result.Final = final
	for _, msg := range assertFinal(scenario, final) {
		result.AddError(msg)
	}
	return result, nil
}

func driverName(driver string) string {
	if driver == "" {
		return store.DriverMemory
	}
	return driver
}

func openStore(driver string) (store.Store, func(), error) {
	noop := func() {}
	switch driverName(driver) {
	case store.DriverMemory:
		return store.NewMemory(), noop, nil
	case store.DriverSQLite:
		s, err := store.OpenSQLite(":memory:")
		return s, noop, err
	case store.DriverFile:
		dir, err := os.MkdirTemp("", "optisess-scenario-*")
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() { os.RemoveAll(dir) }
		s, err := store.OpenFile(dir)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		return s, cleanup, nil
	default:
		return nil, noop, fmt.Errorf("%w %q", store.ErrUnknownDriver, driver)
	}
}

func (h *Harness) seed(ctx context.Context) error {
	if h.scenario.Initial == nil {
		return nil
	}
	initial, err := snapshot.FromAnyMap(h.scenario.Initial)
	if err != nil {
		return err
	}
	data, err := h.manager.Codec().Encode(initial)
	if err != nil {
		return err
	}
	if err := h.store.Open(ctx, h.session); err != nil {
		return err
	}
	if err := h.store.WriteLocked(ctx, h.session, data); err != nil {
		return errors.Join(err, h.store.Release(ctx, h.session))
	}
	return h.store.Release(ctx, h.session)
}

func (h *Harness) readFinal(ctx context.Context) (snapshot.Map, error) {
	sctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()
	data, err := store.View(sctx, h.store, h.session)
	if err != nil || data == nil {
		return nil, err
	}
	return h.manager.Codec().Decode(data)
}

// execute runs one step. Protocol failures become the step's outcome; only
// malformed scenarios return an error.
func (h *Harness) execute(ctx context.Context, i int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: i, Unit: step.Unit, Op: step.Op, Key: step.Key}

	sctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	u := h.units[step.Unit]
	var opErr error
	switch step.Op {
	case OpBegin:
		h.units[step.Unit] = &unit{c: h.manager.Begin(h.session)}

	case OpStart:
		local, err := u.c.Start(sctx)
		opErr = err
		if err == nil {
			u.local = local
			raw, err := local.MarshalJSON()
			if err != nil {
				return event, err
			}
			event.Snapshot = raw
		}

	case OpSet:
		if u.local == nil {
			return event, fmt.Errorf("set before start")
		}
		v, err := snapshot.FromAny(step.Value)
		if err != nil {
			return event, err
		}
		raw, err := snapshot.MarshalValue(v)
		if err != nil {
			return event, err
		}
		event.Value = raw
		u.local[step.Key] = v

	case OpUnset:
		if u.local == nil {
			return event, fmt.Errorf("unset before start")
		}
		delete(u.local, step.Key)

	case OpClear:
		opErr = u.c.Clear()
		if opErr == nil {
			u.local = u.c.Local()
		}

	case OpFlush:
		opErr = u.c.Flush(sctx)

	case OpBindPessimistic:
		u.p = h.manager.NewPessimisticHandler(h.session)
		u.c.Binding().Bind(u.p)

	case OpClosePessimistic:
		if u.p == nil {
			return event, fmt.Errorf("no pessimistic handler bound")
		}
		opErr = u.p.Close(sctx)
	}

	event.Outcome = classify(opErr)
	if event.Outcome == OutcomeError {
		event.Error = opErr.Error()
	}
	h.logger.Debug("scenario step", "step", i, "unit", step.Unit, "op", step.Op, "outcome", event.Outcome)
	return event, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case conflict.IsConflict(err):
		return OutcomeConflict
	case session.IsUnregistered(err):
		return OutcomeUnregistered
	default:
		return OutcomeError
	}
}

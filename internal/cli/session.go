package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/optisess/internal/hook"
	"github.com/roach88/optisess/internal/session"
	"github.com/roach88/optisess/internal/snapshot"
	"github.com/roach88/optisess/internal/store"
)

// SessionView is the result of get, set and unset.
type SessionView struct {
	ID       string       `json:"id"`
	Snapshot snapshot.Map `json:"snapshot"`
}

// RenderText prints one key=value line per key, values as JSON.
func (v SessionView) RenderText(w io.Writer) error {
	if len(v.Snapshot) == 0 {
		_, err := fmt.Fprintf(w, "session %s is empty\n", v.ID)
		return err
	}
	for _, k := range v.Snapshot.SortedKeys() {
		raw, err := snapshot.MarshalValue(v.Snapshot[k])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, raw); err != nil {
			return err
		}
	}
	return nil
}

// ClearView is the result of clear.
type ClearView struct {
	ID      string `json:"id"`
	Cleared bool   `json:"cleared"`
}

func (v ClearView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "session %s cleared\n", v.ID)
	return err
}

// ListView is the result of list.
type ListView struct {
	Sessions []string `json:"sessions"`
}

func (v ListView) RenderText(w io.Writer) error {
	if len(v.Sessions) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}
	for _, id := range v.Sessions {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

// GCView is the result of gc.
type GCView struct {
	Pruned    int    `json:"pruned"`
	OlderThan string `json:"older_than"`
}

func (v GCView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "pruned %d session(s) idle for more than %s\n", v.Pruned, v.OlderThan)
	return err
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id> [key...]",
		Short: "Print a session",
		Long: `Print the stored session, or only the given keys.

Reading never takes the lock for a flush: a unit of work that changes
nothing does not write.

Example:
  optisess get 4f1c2d
  optisess get 4f1c2d user cart --format json`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, args[0], args[1:])
		},
	}
}

func runGet(cmd *cobra.Command, opts *RootOptions, id string, keys []string) error {
	e, err := opts.openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	var local snapshot.Map
	err = hook.Run(cmd.Context(), e.manager, id, func(ctx context.Context, c *session.Controller) error {
		s, err := c.Start(ctx)
		local = s.Clone()
		return err
	})
	if err != nil {
		return sessionError("get", id, err)
	}

	if len(keys) == 0 {
		return e.out.Success(SessionView{ID: id, Snapshot: local})
	}
	subset := make(snapshot.Map, len(keys))
	var missing []string
	for _, k := range keys {
		v, ok := local[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		subset[k] = v
	}
	if len(missing) > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("session %q has no key %s", id, strings.Join(missing, ", ")))
	}
	return e.out.Success(SessionView{ID: id, Snapshot: subset})
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <session-id> key=value...",
		Short: "Set session keys",
		Long: `Set one or more keys and flush them with a three-way merge.

Values are parsed as YAML, so 42 is an integer, true a boolean,
[1, 2] a list and {a: 1} a map. Anything else is a string. An empty
value stores null.

The printed session is the merged result, including keys written by
other units of work since this one read the session.

Exit codes:
  0 - Flushed
  1 - Session conflict or other flush failure
  2 - Command error (bad arguments, config, store)

Example:
  optisess set 4f1c2d user=ada cart.items=3
  optisess set 4f1c2d 'tags=[a, b]' --db ./sessions.db`,
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, opts, args[0], args[1:])
		},
	}
}

func runSet(cmd *cobra.Command, opts *RootOptions, id string, assignments []string) error {
	edits := make(snapshot.Map, len(assignments))
	for _, a := range assignments {
		key, value, err := parseAssignment(a)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid assignment", err)
		}
		edits[key] = value
	}

	e, err := opts.openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	final, err := edit(cmd.Context(), e, id, func(local snapshot.Map) {
		for k, v := range edits {
			local[k] = v
		}
	})
	if err != nil {
		return sessionError("set", id, err)
	}
	return e.out.Success(SessionView{ID: id, Snapshot: final})
}

// NewUnsetCommand creates the unset command.
func NewUnsetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unset <session-id> key...",
		Short: "Remove session keys",
		Long: `Remove one or more keys and flush with a three-way merge.

Removing the last key deletes the session record.

Example:
  optisess unset 4f1c2d flash_msg`,
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnset(cmd, opts, args[0], args[1:])
		},
	}
}

func runUnset(cmd *cobra.Command, opts *RootOptions, id string, keys []string) error {
	e, err := opts.openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	final, err := edit(cmd.Context(), e, id, func(local snapshot.Map) {
		for _, k := range keys {
			delete(local, k)
		}
	})
	if err != nil {
		return sessionError("unset", id, err)
	}
	return e.out.Success(SessionView{ID: id, Snapshot: final})
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a session",
		Long: `Empty the session so that its record is deleted at flush.

Clearing is explicit: keys written concurrently by other units of work
are deleted too.

Example:
  optisess clear 4f1c2d`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, opts, args[0])
		},
	}
}

func runClear(cmd *cobra.Command, opts *RootOptions, id string) error {
	e, err := opts.openEnv(cmd, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	err = hook.Run(cmd.Context(), e.manager, id, func(ctx context.Context, c *session.Controller) error {
		if _, err := c.Start(ctx); err != nil {
			return err
		}
		return c.Clear()
	})
	if err != nil {
		return sessionError("clear", id, err)
	}
	return e.out.Success(ClearView{ID: id, Cleared: true})
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored session ids",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.openEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := e.store.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list sessions", err)
			}
			if ids == nil {
				ids = []string{}
			}
			return e.out.Success(ListView{Sessions: ids})
		},
	}
}

// NewGCCommand creates the gc command.
func NewGCCommand(opts *RootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete idle sessions",
		Long: `Delete sessions that were not written for longer than --older-than.
Sessions that are locked by a running unit of work are skipped.

Example:
  optisess gc --older-than 24m`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return NewExitError(ExitCommandError, "--older-than must be positive")
			}
			e, err := opts.openEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to prune sessions", err)
			}
			e.logger.Info("sessions pruned", "count", n, "older_than", olderThan)
			return e.out.Success(GCView{Pruned: n, OlderThan: olderThan.String()})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Minute, "maximum idle time")
	return cmd
}

// edit runs one unit of work that applies fn to the working copy and
// returns the flushed snapshot.
func edit(ctx context.Context, e *env, id string, fn func(snapshot.Map)) (snapshot.Map, error) {
	var ctrl *session.Controller
	err := hook.Run(ctx, e.manager, id, func(ctx context.Context, c *session.Controller) error {
		ctrl = c
		local, err := c.Start(ctx)
		if err != nil {
			return err
		}
		fn(local)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ctrl.Local(), nil
}

// parseAssignment splits key=value and parses the value as YAML.
func parseAssignment(s string) (string, snapshot.Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, fmt.Errorf("%q is not key=value", s)
	}
	v, err := parseValue(raw)
	if err != nil {
		return "", nil, fmt.Errorf("value of %q: %w", key, err)
	}
	return key, v, nil
}

// parseValue reads a YAML scalar or flow collection. Empty is null.
func parseValue(raw string) (snapshot.Value, error) {
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	// Dates stay as written.
	if _, ok := decoded.(time.Time); ok {
		decoded = raw
	}
	return snapshot.FromAny(decoded)
}

func sessionError(op, id string, err error) error {
	code := ExitFailure
	if errors.Is(err, store.ErrInvalidID) {
		code = ExitCommandError
	}
	return WrapExitError(code, fmt.Sprintf("%s session %q failed", op, id), err)
}

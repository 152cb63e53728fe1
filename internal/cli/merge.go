package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/optisess/internal/codec"
	"github.com/roach88/optisess/internal/config"
	"github.com/roach88/optisess/internal/conflict"
	"github.com/roach88/optisess/internal/merge"
	"github.com/roach88/optisess/internal/snapshot"
)

// MergeView is the result of merge.
type MergeView struct {
	Final         snapshot.Map   `json:"final"`
	NeedWrite     bool           `json:"need_write"`
	RemoteChanged bool           `json:"remote_changed"`
	Changes       []ChangeView   `json:"changes"`
	Resolved      []ResolvedView `json:"resolved,omitempty"`
}

// ChangeView classifies one key.
type ChangeView struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

// ResolvedView names the rule that settled a conflict.
type ResolvedView struct {
	Key  string `json:"key"`
	Rule string `json:"rule"`
}

func (v MergeView) RenderText(w io.Writer) error {
	width := 0
	for _, c := range v.Changes {
		width = max(width, len(c.Key))
	}
	for _, c := range v.Changes {
		fmt.Fprintf(w, "%-*s  %s\n", width, c.Key, c.Kind)
	}
	for _, r := range v.Resolved {
		fmt.Fprintf(w, "resolved %s by %s\n", r.Key, r.Rule)
	}
	final, err := v.Final.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "final: %s\n", final)
	return err
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(opts *RootOptions) *cobra.Command {
	var extra []string
	cmd := &cobra.Command{
		Use:   "merge <baseline> <local> <remote>",
		Short: "Three-way merge of snapshot files",
		Long: `Merge three snapshot files the way a flush does and print the
per-key classification and the merged snapshot. Files ending in .yaml
or .yml are read as YAML, everything else as JSON.

Conflicts are settled by the configured rules plus any --rule flags,
which take precedence. A conflict no rule settles fails with exit 1.

Example:
  optisess merge base.json mine.json theirs.json
  optisess merge base.yaml mine.yaml theirs.yaml --rule 'cart.*=override'`,
		Args: usageArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, opts, args, extra)
		},
	}
	cmd.Flags().StringArrayVar(&extra, "rule", nil, "extra conflict rule as pattern=policy (repeatable)")
	return cmd
}

func runMerge(cmd *cobra.Command, opts *RootOptions, paths []string, extra []string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	table, err := rulesTable(cfg, extra)
	if err != nil {
		return err
	}

	snaps := make([]snapshot.Map, len(paths))
	for i, path := range paths {
		if snaps[i], err = readSnapshot(path); err != nil {
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
	}
	baseline, local, remote := snaps[0], snaps[1], snaps[2]

	res, err := merge.Merge(baseline, local, remote, table)
	if err != nil {
		return WrapExitError(ExitFailure, "merge failed", err)
	}

	view := MergeView{
		Final:         res.Final,
		NeedWrite:     res.NeedWrite,
		RemoteChanged: res.RemoteChanged,
		Changes:       []ChangeView{},
	}
	for _, c := range merge.Diff(baseline, local, remote) {
		view.Changes = append(view.Changes, ChangeView{Key: c.Key, Kind: c.Kind.String()})
	}
	for _, r := range res.Resolved {
		rule, _ := table.Match(r.Key)
		view.Resolved = append(view.Resolved, ResolvedView{Key: r.Key, Rule: rule.String()})
	}
	return opts.formatter(cmd).Success(view)
}

// rulesTable compiles extra pattern=policy rules ahead of the configured
// ones.
func rulesTable(cfg *config.Config, extra []string) (*conflict.Table, error) {
	rules := make([]conflict.Rule, 0, len(extra)+len(cfg.Rules))
	for _, s := range extra {
		pattern, name, ok := strings.Cut(s, "=")
		if !ok || pattern == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid rule %q: want pattern=policy", s))
		}
		policy, err := conflict.ParsePolicy(name)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid rule %q", s), err)
		}
		rules = append(rules, conflict.Rule{Pattern: pattern, Policy: policy})
	}
	rules = append(rules, cfg.Rules...)
	table, err := conflict.NewTable(rules...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid rules", err)
	}
	return table, nil
}

func readSnapshot(path string) (snapshot.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := codec.ForPath(path).Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/optisess/internal/conflict"
)

// RulesView is the result of rules.
type RulesView struct {
	Rules   []conflict.Rule `json:"rules"`
	Matches []MatchView     `json:"matches,omitempty"`
}

// MatchView tells what a conflict on Key would do.
type MatchView struct {
	Key     string         `json:"key"`
	Rule    *conflict.Rule `json:"rule"`
	Outcome string         `json:"outcome"`
}

func (v RulesView) RenderText(w io.Writer) error {
	if len(v.Rules) == 0 {
		fmt.Fprintln(w, "no rules: every conflict fails")
	}
	for i, r := range v.Rules {
		fmt.Fprintf(w, "%d. %s\n", i+1, r)
	}
	for _, m := range v.Matches {
		if m.Rule == nil {
			fmt.Fprintf(w, "%s: no rule, %s\n", m.Key, m.Outcome)
			continue
		}
		fmt.Fprintf(w, "%s: %s, %s\n", m.Key, m.Rule, m.Outcome)
	}
	return nil
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules [key...]",
		Short: "Show conflict rules",
		Long: `Print the configured conflict rules in evaluation order. For each
key given, print the first rule that matches it and what a true
conflict on that key would do.

Example:
  optisess rules --config optisess.yaml
  optisess rules cart.items flash_msg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			table, err := cfg.Table()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid rules", err)
			}

			view := RulesView{Rules: table.Rules()}
			if view.Rules == nil {
				view.Rules = []conflict.Rule{}
			}
			for _, key := range args {
				view.Matches = append(view.Matches, matchKey(table, key))
			}
			return opts.formatter(cmd).Success(view)
		},
	}
}

func matchKey(t *conflict.Table, key string) MatchView {
	rule, ok := t.Match(key)
	if !ok {
		return MatchView{Key: key, Outcome: "fail"}
	}
	m := MatchView{Key: key, Rule: &rule}
	switch rule.Policy {
	case conflict.Override:
		m.Outcome = "keep mine"
	case conflict.Ignore:
		m.Outcome = "keep theirs"
	default:
		m.Outcome = "fail"
	}
	return m
}

package conflict

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/optisess/internal/snapshot"
)

// ErrInvalidPattern indicates a rule pattern could not be compiled.
var ErrInvalidPattern = errors.New("invalid conflict rule pattern")

// Rule pairs a key pattern with a resolution policy.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Policy  Policy `yaml:"policy" json:"policy"`
}

// String renders the rule as "pattern => policy".
func (r Rule) String() string {
	return fmt.Sprintf("%s => %s", r.Pattern, r.Policy)
}

type matcher interface {
	Match(key string) bool
}

type compiledRule struct {
	Rule
	m matcher
}

// Table is an ordered, compiled rule list. It is read-only after
// construction and safe for concurrent use.
type Table struct {
	rules []compiledRule
}

// NewTable compiles rules in order. An empty table resolves nothing: every
// true conflict fails.
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		m, err := compilePattern(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		t.rules = append(t.rules, compiledRule{Rule: r, m: m})
	}
	return t, nil
}

// MustTable is NewTable that panics on error. For tests and literals.
func MustTable(rules ...Rule) *Table {
	t, err := NewTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns the rules in evaluation order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Rule
	}
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Match returns the first rule whose pattern matches key.
func (t *Table) Match(key string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	normalized := norm.NFC.String(key)
	for _, r := range t.rules {
		if r.m.Match(normalized) {
			return r.Rule, true
		}
	}
	return Rule{}, false
}

// Resolve decides a true conflict on key. base is carried for callers that
// log or inspect the decision; only mine and theirs can be returned.
func (t *Table) Resolve(key string, base, mine, theirs snapshot.Slot) (snapshot.Slot, error) {
	rule, ok := t.Match(key)
	if !ok {
		return snapshot.Unset, &ConflictError{Key: key}
	}
	switch rule.Policy {
	case Override:
		return mine, nil
	case Ignore:
		return theirs, nil
	default:
		return snapshot.Unset, &ConflictError{Key: key, Matched: true, Pattern: rule.Pattern}
	}
}

func compilePattern(pattern string) (matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if expr, ok := regexBody(pattern); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		return regexMatcher{re}, nil
	}
	g, err := glob.Compile(norm.NFC.String(pattern))
	if err != nil {
		return nil, errors.Join(ErrInvalidPattern, err)
	}
	return g, nil
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) Match(key string) bool {
	return m.re.MatchString(key)
}

// regexBody extracts the expression from "/expr/" or "re:expr".
func regexBody(pattern string) (string, bool) {
	if strings.HasPrefix(pattern, "re:") {
		return strings.TrimPrefix(pattern, "re:"), true
	}
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		return pattern[1 : len(pattern)-1], true
	}
	return "", false
}

package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisess/internal/conflict"
)

func TestRuleWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "rules.yaml", "rules:\n  - pattern: a\n    policy: override\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	initial, err := cfg.Table()
	require.NoError(t, err)

	w, err := NewRuleWatcher(path, initial, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Same(t, initial, w.Table())

	require.NoError(t, os.WriteFile(path, []byte(
		"rules:\n  - pattern: a\n    policy: ignore\n  - pattern: b\n    policy: override\n"), 0o600))

	require.Eventually(t, func() bool { return w.Table().Len() == 2 }, 5*time.Second, 10*time.Millisecond)
	rule, ok := w.Table().Match("a")
	require.True(t, ok)
	assert.Equal(t, conflict.Ignore, rule.Policy)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRuleWatcher_KeepsRulesOnBadFile(t *testing.T) {
	path := writeFile(t, "rules.yaml", "rules:\n  - pattern: a\n    policy: override\n")
	initial := conflict.MustTable(conflict.Rule{Pattern: "a", Policy: conflict.Override})

	w, err := NewRuleWatcher(path, initial, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - pattern: a\n    policy: sometimes\n"), 0o600))
	assert.Error(t, w.Reload())
	assert.Same(t, initial, w.Table())

	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o600))
	require.NoError(t, w.Reload())
	assert.Equal(t, 0, w.Table().Len())
}

func TestRuleWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeFile(t, "rules.yaml", "rules: []\n")
	initial := conflict.MustTable()

	w, err := NewRuleWatcher(path, initial, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path+".bak", []byte("not: [valid"), 0o600))
	time.Sleep(50 * time.Millisecond)
	assert.Same(t, initial, w.Table())

	require.NoError(t, w.Close())
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

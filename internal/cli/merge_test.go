package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSnapshots writes baseline, local and remote files with ext and
// returns their paths.
func writeSnapshots(t *testing.T, ext, baseline, local, remote string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "baseline"+ext),
		filepath.Join(dir, "local"+ext),
		filepath.Join(dir, "remote"+ext),
	}
	for i, content := range []string{baseline, local, remote} {
		writeFile(t, paths[i], content)
	}
	return paths
}

func TestMerge_DisjointEdits(t *testing.T) {
	paths := writeSnapshots(t, ".json", `{"a":1,"b":1}`, `{"a":2,"b":1}`, `{"a":1,"b":3}`)

	stdout, stderr, code := runCLI(t, append([]string{"merge"}, paths...)...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "a  mine\nb  theirs\nfinal: {\"a\":2,\"b\":3}\n", stdout)
}

func TestMerge_YAMLFilesJSON(t *testing.T) {
	paths := writeSnapshots(t, ".yaml", "a: 1\n", "a: 1\nb: x\n", "a: 1\n")

	stdout, stderr, code := runCLI(t, append([]string{"merge", "--format", "json"}, paths...)...)
	require.Equal(t, ExitSuccess, code, stderr)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{
		"final":          map[string]any{"a": float64(1), "b": "x"},
		"need_write":     true,
		"remote_changed": false,
		"changes": []any{
			map[string]any{"key": "a", "kind": "unchanged"},
			map[string]any{"key": "b", "kind": "mine"},
		},
	}, resp.Data)
}

func TestMerge_ConflictFails(t *testing.T) {
	paths := writeSnapshots(t, ".json", `{"cart":1}`, `{"cart":2}`, `{"cart":3}`)

	stdout, _, code := runCLI(t, append([]string{"merge", "--format", "json"}, paths...)...)
	assert.Equal(t, ExitFailure, code)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeConflict, resp.Error.Code)
	assert.Equal(t, map[string]any{"key": "cart"}, resp.Error.Details)
}

func TestMerge_RuleFlagResolvesConflict(t *testing.T) {
	paths := writeSnapshots(t, ".json", `{"cart":1}`, `{"cart":2}`, `{"cart":3}`)

	args := append([]string{"merge", "--rule", "cart=override"}, paths...)
	stdout, stderr, code := runCLI(t, args...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Equal(t, "cart  conflict\nresolved cart by cart => override\nfinal: {\"cart\":2}\n", stdout)
}

func TestMerge_RuleFlagPrecedesConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "optisess.yaml")
	writeFile(t, configPath, "rules:\n  - {pattern: cart, policy: fail}\n")
	paths := writeSnapshots(t, ".json", `{"cart":1}`, `{"cart":2}`, `{"cart":3}`)

	_, _, code := runCLI(t, append([]string{"merge", "--config", configPath}, paths...)...)
	assert.Equal(t, ExitFailure, code)

	args := append([]string{"merge", "--config", configPath, "--rule", "cart=ignore"}, paths...)
	stdout, stderr, code := runCLI(t, args...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "final: {\"cart\":3}\n")
}

func TestMerge_InvalidRuleFlag(t *testing.T) {
	paths := writeSnapshots(t, ".json", `{}`, `{}`, `{}`)

	for _, rule := range []string{"cart", "=override", "cart=maybe", "/[/=fail"} {
		t.Run(rule, func(t *testing.T) {
			_, stderr, code := runCLI(t, append([]string{"merge", "--rule", rule}, paths...)...)
			assert.Equal(t, ExitCommandError, code)
			assert.Contains(t, stderr, "invalid rule")
		})
	}
}

func TestMerge_MissingFile(t *testing.T) {
	paths := writeSnapshots(t, ".json", `{}`, `{}`, `{}`)
	paths[2] = filepath.Join(t.TempDir(), "absent.json")

	_, stderr, code := runCLI(t, append([]string{"merge"}, paths...)...)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to read snapshot")
}

func TestMerge_NotASnapshot(t *testing.T) {
	paths := writeSnapshots(t, ".json", `[1]`, `{}`, `{}`)

	_, stderr, code := runCLI(t, append([]string{"merge"}, paths...)...)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "baseline.json")
}

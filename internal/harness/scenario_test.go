package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/optisess/internal/conflict"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
name: test_scenario
description: "Test scenario for validation"
driver: sqlite
session: abc123
rules:
  - {pattern: "cart.*", policy: override}
initial:
  cart.items: 1
steps:
  - {unit: A, op: begin}
  - {unit: A, op: start}
  - {unit: A, op: set, key: user, value: ada}
  - {unit: A, op: flush}
expect_final:
  cart.items: 1
  user: ada
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, "sqlite", scenario.Driver)
	assert.Equal(t, "abc123", scenario.Session)
	require.Len(t, scenario.Rules, 1)
	assert.Equal(t, "cart.*", scenario.Rules[0].Pattern)
	assert.Equal(t, conflict.Override, scenario.Rules[0].Policy)
	assert.Equal(t, 1, scenario.Initial["cart.items"])
	require.Len(t, scenario.Steps, 4)
	assert.Equal(t, Step{Unit: "A", Op: OpSet, Key: "user", Value: "ada"}, scenario.Steps[2])
	assert.Equal(t, "ada", scenario.ExpectFinal["user"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
stpes:
  - {unit: A, op: begin}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "steps: [{unit: A, op: begin}]",
			wantErr: "name is required",
		},
		{
			name:    "no steps",
			content: "name: x",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown driver",
			content: "name: x\ndriver: redis\nsteps: [{unit: A, op: begin}]",
			wantErr: `unknown driver "redis"`,
		},
		{
			name:    "invalid session id",
			content: "name: x\nsession: ../etc\nsteps: [{unit: A, op: begin}]",
			wantErr: "invalid session id",
		},
		{
			name:    "bad rule",
			content: "name: x\nrules: [{pattern: '/[/', policy: fail}]\nsteps: [{unit: A, op: begin}]",
			wantErr: "invalid conflict rule pattern",
		},
		{
			name:    "both final expectations",
			content: "name: x\nexpect_absent: true\nexpect_final: {a: 1}\nsteps: [{unit: A, op: begin}]",
			wantErr: "mutually exclusive",
		},
		{
			name:    "unit used before begin",
			content: "name: x\nsteps: [{unit: A, op: start}]",
			wantErr: `step 0: unit "A" used before begin`,
		},
		{
			name:    "begin twice",
			content: "name: x\nsteps: [{unit: A, op: begin}, {unit: A, op: begin}]",
			wantErr: `step 1: unit "A" begun twice`,
		},
		{
			name:    "unknown op",
			content: "name: x\nsteps: [{unit: A, op: begin}, {unit: A, op: commit}]",
			wantErr: `unknown op "commit"`,
		},
		{
			name:    "set without key",
			content: "name: x\nsteps: [{unit: A, op: begin}, {unit: A, op: set, value: 1}]",
			wantErr: "set requires a key",
		},
		{
			name:    "set without value",
			content: "name: x\nsteps: [{unit: A, op: begin}, {unit: A, op: set, key: a}]",
			wantErr: "set requires a value",
		},
		{
			name:    "missing unit",
			content: "name: x\nsteps: [{op: begin}]",
			wantErr: "unit is required",
		},
		{
			name:    "unknown expect_error",
			content: "name: x\nsteps: [{unit: A, op: begin, expect_error: timeout}]",
			wantErr: `unknown expect_error "timeout"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTestdataScenariosParse(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.Equal(t, filepath.Base(path), scenario.Name+".yaml", "scenario name must match its file name")
		assert.NotEmpty(t, scenario.Description, path)
	}
}

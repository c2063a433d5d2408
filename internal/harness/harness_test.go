package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name should match its file")
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/retry_after_rejection.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.True(t, first.Pass, "errors: %v", first.Errors)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: every check here is wrong
steps:
  - action: claim
    user: u1
    key: k
    expect: duplicate
assertions:
  - type: ledger_entry
    user: u1
    key: k
    status: completed
  - type: holdings
    user: u1
    positions:
      - {symbol: BTC/KRW, category: major}
  - type: trace_count
    action: claim
    count: 2
  - type: table_count
    table: trades
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], `expected outcome "duplicate", got "new"`)
	assert.Contains(t, result.Errors[1], "status=processing attempts=1")
	assert.Contains(t, result.Errors[2], "holdings of u1 = [BTC/KRW:major]")
	assert.Contains(t, result.Errors[3], "claim exactly 2 time(s)")
	assert.Contains(t, result.Errors[4], "1 row(s) in trades")

	// Failure messages carry the trace for context.
	assert.Contains(t, result.Errors[1], "[0] claim u1 k -> new")
}

func TestRun_MissingEntry(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: missing
description: asserts on an entry that was never claimed
steps:
  - action: sweep
    expect: stale=0
assertions:
  - type: ledger_entry
    user: u1
    key: ghost
    status: processing
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no entry")
}

func TestRun_StepError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_quantity
description: a malformed instruction aborts the run
steps:
  - action: execute
    user: u1
    key: k
    symbol: BTC/KRW
    side: buy
    quantity: lots
assertions:
  - type: trace_count
    action: execute
    count: 1
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 (execute): quantity")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{action: sweep}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{action: sweep}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{action: sweep}]",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nsteps: [{action: sweep}]\nassertion: []",
			wantErr: "field assertion not found",
		},
		{
			name:    "unknown action",
			yaml:    "name: n\ndescription: d\nsteps: [{action: teleport}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: `steps[0]: unknown action "teleport"`,
		},
		{
			name:    "execute without quantity",
			yaml:    "name: n\ndescription: d\nsteps: [{action: execute, user: u, key: k, symbol: S, side: buy}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "execute needs user, key, symbol, side and quantity",
		},
		{
			name:    "fail without reason",
			yaml:    "name: n\ndescription: d\nsteps: [{action: fail, user: u, key: k}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "fail needs a reason",
		},
		{
			name:    "advance without duration",
			yaml:    "name: n\ndescription: d\nsteps: [{action: advance}]\nassertions: [{type: trace_count, action: sweep, count: 1}]",
			wantErr: "advance needs a positive duration",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{action: sweep}]\nassertions: [{type: final_state}]",
			wantErr: `unknown assertion type "final_state"`,
		},
		{
			name:    "holdings without user",
			yaml:    "name: n\ndescription: d\nsteps: [{action: sweep}]\nassertions: [{type: holdings}]",
			wantErr: "user is required for holdings",
		},
		{
			name:    "table_count without table",
			yaml:    "name: n\ndescription: d\nsteps: [{action: sweep}]\nassertions: [{type: table_count, count: 0}]",
			wantErr: "table is required for table_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "sweep exactly 1 time(s)",
		Actual:   "0 time(s)",
		Trace: []TraceEvent{
			{Step: 0, Action: "claim", User: "u1", Key: "k", Outcome: "new"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: sweep exactly 1 time(s)")
	assert.Contains(t, msg, "Actual: 0 time(s)")
	assert.Contains(t, msg, "[0] claim u1 k -> new")
}

package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tradeledger/internal/canon"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to the value shape canon.Marshal
// accepts. Empty optional fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"action":  ev.Action,
			"outcome": ev.Outcome,
		}
		if ev.User != "" {
			m["user"] = ev.User
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		if ev.EntryID != "" {
			m["entry_id"] = ev.EntryID
		}
		if ev.Attempts != 0 {
			m["attempts"] = ev.Attempts
		}
		if ev.Holdings != nil {
			held := make([]any, len(ev.Holdings))
			for j, h := range ev.Holdings {
				held[j] = h
			}
			m["holdings"] = held
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario, fails t on any expectation or
// assertion error, and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	traceJSON, err := canon.Marshal(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

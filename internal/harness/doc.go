// Package harness runs scripted ledger scenarios as executable contract
// tests.
//
// A scenario drives the real ledger, executor and holdings service over an
// in-memory store with a frozen clock and sequential ids, then checks the
// step outcomes and final state. The per-step trace is compared against a
// golden file.
//
// # Scenario Format
//
//	name: retry_after_rejection
//	description: "What this scenario validates"
//	retry:
//	  max_attempts: 2
//	  retry_failed: true
//	steps:
//	  - action: execute
//	    user: u1
//	    key: msg-1
//	    symbol: BTC/KRW
//	    side: buy
//	    diff: 1
//	    category: major
//	    quantity: "0.01"
//	    price: "91000000"
//	    reject: insufficient balance
//	    expect: failed
//	  - action: reconcile
//	    user: u1
//	assertions:
//	  - type: ledger_entry
//	    user: u1
//	    key: msg-1
//	    status: failed
//	  - type: holdings
//	    user: u1
//
// # Step Actions
//
//   - execute: run an instruction through the executor (paper exchange, or
//     a rejection when reject is set)
//   - claim, complete, fail: drive the ledger directly
//   - reconcile: fold explicit executions, or the user's executed
//     instructions since the last reconcile, into holdings
//   - advance: move the frozen clock
//   - sweep: count stale processing entries
//
// # Assertion Types
//
//   - holdings: the user's snapshot equals positions, in order
//   - ledger_entry: an entry has the given status (and attempts)
//   - trace_count: steps with an action and outcome occur count times
//   - table_count: a sequence-ordered table holds count rows
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/retry_after_rejection.yaml")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	if err := harness.RunWithGolden(t, scenario); err != nil {
//	    t.Fatal(err)
//	}
package harness

// Package reconcile folds a batch of settled trade executions into a new
// holdings snapshot.
//
// Holdings are in/out-of-position state per (symbol, category), not netted
// quantities. A buy adds a position; a full liquidation removes it; a
// partial sell leaves it untouched. Every function here is pure: no I/O, no
// shared state, safe to call concurrently.
//
// A pass runs in three steps:
//
//  1. ExecutedBuys collects positions opened by buy trades with a known
//     category, collapsing repeated fills.
//  2. Liquidations collects positions closed by full-liquidation sells.
//     A sell without a category closes every existing category that holds
//     the symbol.
//  3. Merge drops liquidated positions from the prior snapshot and appends
//     bought ones. A position both liquidated and rebought in one batch
//     stays held.
package reconcile

// Package holdings persists per-user holdings snapshots and runs
// reconciliation passes over them.
//
// A snapshot is replaced wholesale in one transaction; readers see either
// the previous snapshot or the next one, never a mix. Two passes for the
// same user must not run concurrently: the last one to commit wins.
package holdings

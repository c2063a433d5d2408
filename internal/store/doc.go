// Package store provides the SQLite-backed transactional store shared by
// the ledger components.
//
// The store holds:
//   - sequence_counter: the global sequence (one row per issued number)
//   - execution_ledger: per-instruction idempotency rows
//   - holdings: the current holdings snapshot per user
//   - recommendations, trades, notifications, audit_runs: sequence-ordered tables
//
// # Invariants
//
// Mutual exclusion is delegated to SQLite: AUTOINCREMENT for sequence
// numbers and UNIQUE constraints for idempotency keys. No component relies
// on in-process locks, so several processes may share one database file.
//
// Ordering of sequence-ordered tables always uses the seq column, never a
// timestamp.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: Transactions take the write lock at BEGIN
package store

// Package ledger implements the execution ledger: a per-instruction
// idempotency table consulted before an instruction is sent to an exchange.
//
// The idempotency key is (module, message_key, user_id). Uniqueness is
// enforced by the store's UNIQUE constraint; Claim attempts the insert and
// treats a conflict as "already claimed", so exactly one of any number of
// racing claimants observes IsNew=true, across processes.
//
// Entries start in processing and move to completed or failed exactly once.
// Repeated Complete/Fail calls on a terminal entry are no-ops. A terminal
// or abandoned entry is re-attempted only through Reclaim, and only when a
// caller-supplied RetryPolicy allows it; the ledger never retries on its own.
package ledger

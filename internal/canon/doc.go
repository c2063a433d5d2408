// Package canon computes deterministic payload fingerprints.
//
// Payloads are serialized to canonical JSON (sorted keys, NFC-normalized
// strings, no HTML escaping) and hashed with SHA-256 under a domain prefix.
// The ledger stores the resulting hex digest as payload_hash so a retried
// message that reuses an idempotency key with a different body is detectable.
package canon

// Package execution runs trade instructions against an exchange at most
// once.
//
// Every instruction is claimed in the execution ledger before the exchange
// is called. Only the claimant that observes IsNew places the order; every
// other delivery of the same instruction is reported as a duplicate. The
// ledger entry is finished (completed or failed) after the exchange
// answers, and the fill is recorded as a trade row.
package execution

// Package records stores the sequence-ordered tables: recommendations,
// trades, notifications and audit runs.
//
// Every insert draws its seq from the global sequence generator inside the
// same transaction as the row, so a rolled-back insert never leaves a
// numbered gap-filler behind and a committed row always has a unique seq.
// Reads go through pager, ordered by seq only.
package records

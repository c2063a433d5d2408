// Package pager implements offset and keyset pagination over any
// sequence-ordered table.
//
// Rows are always ordered by their seq column. Timestamps are never used
// for ordering: batch inserts create many rows within one clock tick.
//
// Table-specific filters are expressed as Predicates and compiled to
// parameterized SQL. Values are never interpolated into query text.
package pager

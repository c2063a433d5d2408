package model

// SequenceNumber is an opaque, strictly increasing position in the global
// order shared by every sequence-ordered table. Only ordering is meaningful.
type SequenceNumber int64

// NoSequence is returned by Current when no number has been issued yet.
const NoSequence SequenceNumber = 0

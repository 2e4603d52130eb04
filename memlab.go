// Package memlab models the memory state of a running C program — stack,
// heap, globals, CPU registers, and user-defined types — as a sequence of
// immutable snapshots.
//
// The packages under pkg/ divide the work: memory holds the snapshot data
// model and the copy-on-write SnapshotBuilder, analysis answers pointer and
// leak queries over finished snapshots, diff compares two snapshots, history
// tracks a snapshot timeline with an undo/redo cursor, persist saves and
// loads snapshots and sessions, and render formats everything for the
// console. cmd/memlab ties them together into an interactive simulator.
package memlab

// Version is the semantic version of the memlab library.
const Version = "0.1.0-dev"

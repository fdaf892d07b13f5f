// Package store is the event-sourced spec store: the registry of per-spec
// state handles, the recovery engine that rebuilds state from snapshot plus
// log replay, and the command processor that is the sole mutation path.
//
// # Layout
//
// Each spec owns one directory under <data dir>/specs/<spec id> holding its
// append-only event log and at most one snapshot:
//
//	specs/<id>/events.log
//	specs/<id>/snapshot.json
//
// An optional SQLite card index lives beside the specs directory; it is
// derived data, rebuilt on demand, and never consulted for correctness.
//
// # Concurrency
//
// There is one logical writer per spec. Commands for the same spec queue
// behind the spec handle's lock and each observes the state as of its own
// turn; commands for different specs run fully in parallel. Reads return
// deep copies taken under the same lock, so a reader always sees state at a
// consistent event boundary, never a half-applied batch. Snapshot writes
// and compaction run in the background off the write path.
package store

package store

import "errors"

// ErrVersionConflict reports an optimistic-concurrency mismatch: the
// caller's expected version no longer matches the spec's current sequence
// number. The caller should re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

// ErrSpecNotFound reports an operation on a spec that has no on-disk state.
var ErrSpecNotFound = errors.New("spec not found")

// ErrSpecFailed reports a spec whose recovery hit unrecoverable corruption
// spanning the required replay range. Other specs are unaffected; failure
// isolation is per spec.
var ErrSpecFailed = errors.New("spec failed recovery")

// ErrCompacted reports a read starting below the oldest event still on
// disk: compaction discarded the requested prefix. The caller should read
// current state instead, or subscribe and follow the reported gap.
var ErrCompacted = errors.New("events compacted away")

// ErrClosed reports an operation on a closed store.
var ErrClosed = errors.New("store closed")

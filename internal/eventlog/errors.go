package eventlog

import "errors"

// ErrCorrupt reports a malformed record detected while scanning the log.
// Callers should use errors.Is(err, ErrCorrupt).
var ErrCorrupt = errors.New("event log corrupt")

// ErrClosed reports an operation on a closed log.
var ErrClosed = errors.New("event log closed")

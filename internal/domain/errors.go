package domain

import "errors"

// ErrNotFound reports a command that targets a card that does not exist.
var ErrNotFound = errors.New("card not found")

// ErrConflict reports a command that collides with existing state, for
// example creating a card with an ID that is already taken.
var ErrConflict = errors.New("conflict")

// ErrInvalidPayload reports a command with a malformed or incomplete payload.
var ErrInvalidPayload = errors.New("invalid payload")

// ErrUnknownEvent reports an event whose type is not part of the vocabulary.
// Callers should use errors.Is(err, ErrUnknownEvent).
var ErrUnknownEvent = errors.New("unknown event type")

// ErrUnknownSchema reports an event written by a newer format than this
// reader understands. Rejecting it at decode time prevents silent state
// divergence across versions.
var ErrUnknownSchema = errors.New("unknown event schema version")

// Package domain defines the spec/card model, the command and event
// vocabularies, and the pure functions that connect them.
//
// # Model
//
// A spec is a named collection of cards and forms one independently-ordered
// aggregate. Cards are leaf units of tracked work: a title, a lifecycle
// status, free-form key/value fields, and an optional parent card.
//
// # Commands and events
//
// Commands are transient client intents. [Validate] checks a command against
// the current [SpecState] and either rejects it whole or derives the events
// that record it; it never partially applies. Events are immutable once
// appended; [Apply] folds one event into state and is deterministic, so
// replaying the same ordered events always reconstructs the same state.
//
// The event vocabulary is closed. Every payload carries a schema version, and
// decoding rejects unknown types or future versions instead of silently
// ignoring them.
package domain

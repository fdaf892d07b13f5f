// Package snapshot persists point-in-time serializations of a spec state
// together with the event sequence number they reflect.
//
// Snapshots are derived data: they bound replay time but carry no
// durability guarantees of their own. The event log stays authoritative, so
// a missing or damaged snapshot is never fatal; recovery just falls back to
// a full replay. Deleting a snapshot is always safe.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/specdeck/specdeck/internal/domain"
)

const snapshotMagic = "SDSNAP01"

// ErrFormat reports a snapshot written by an incompatible format version.
var ErrFormat = errors.New("unsupported snapshot format")

// envelope is the on-disk snapshot shape: a magic tag, the sequence number
// the state reflects, and the serialized state itself.
type envelope struct {
	Magic string            `json:"magic"`
	Seq   uint64            `json:"seq"`
	State *domain.SpecState `json:"state"`
}

// Save atomically replaces the snapshot at path with state as of seq.
//
// The write goes to a temp file that is fsynced and renamed into place, so
// a concurrent reader or a crash mid-write never observes a half-written
// snapshot; it sees either the previous one or the new one.
func Save(path string, state *domain.SpecState, seq uint64) error {
	if path == "" {
		return errors.New("save snapshot: path is empty")
	}

	if state == nil {
		return errors.New("save snapshot: state is nil")
	}

	if seq == 0 {
		return errors.New("save snapshot: seq is zero")
	}

	data, err := json.Marshal(envelope{Magic: snapshotMagic, Seq: seq, State: state})
	if err != nil {
		return fmt.Errorf("save snapshot: encode: %w", err)
	}

	err = atomic.WriteFile(filepath.Clean(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// Load returns the snapshot at path, or (nil, 0, nil) when none exists.
//
// A snapshot that does not parse, fails its magic check, or carries a state
// schema this reader does not understand is reported via the error but
// should be treated as absent by recovery: the log can always rebuild the
// same state. Only a format from the future is surfaced as [ErrFormat] so
// callers can distinguish "damaged" from "too new".
func Load(path string) (*domain.SpecState, uint64, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}

		return nil, 0, fmt.Errorf("load snapshot: %w", err)
	}

	var env envelope

	err = json.Unmarshal(data, &env)
	if err != nil {
		return nil, 0, fmt.Errorf("load snapshot: decode: %w", err)
	}

	if env.Magic != snapshotMagic {
		return nil, 0, fmt.Errorf("load snapshot: magic %q: %w", env.Magic, ErrFormat)
	}

	if env.State == nil || env.Seq == 0 {
		return nil, 0, fmt.Errorf("load snapshot: missing state or seq")
	}

	if env.State.SchemaVersion > domain.StateSchemaVersion {
		return nil, 0, fmt.Errorf("load snapshot: state schema %d (max %d): %w",
			env.State.SchemaVersion, domain.StateSchemaVersion, ErrFormat)
	}

	if env.State.Seq != env.Seq {
		return nil, 0, fmt.Errorf("load snapshot: state seq %d != envelope seq %d",
			env.State.Seq, env.Seq)
	}

	if env.State.Cards == nil {
		env.State.Cards = make(map[string]*domain.Card)
	}

	return env.State, env.Seq, nil
}

// Remove deletes the snapshot at path. Missing snapshots are not an error.
func Remove(path string) error {
	err := os.Remove(filepath.Clean(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}

	return nil
}

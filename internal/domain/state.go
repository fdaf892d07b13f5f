package domain

import "time"

// StateSchemaVersion tags serialized SpecState (snapshots). Readers reject
// higher versions instead of misinterpreting them.
const StateSchemaVersion = 1

// SpecState is the reconstructed current state of one spec: spec-level
// metadata plus the card map. It is always fully derivable by folding the
// spec's ordered event sequence from empty state or from a snapshot.
//
// A SpecState is owned by the per-spec command processor; everyone else gets
// copies via [SpecState.Clone].
type SpecState struct {
	// Spec identifier (UUIDv7).
	SpecID string `json:"spec_id"`

	// Human-readable spec name.
	Name string `json:"name"`

	// Creation timestamp (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Serialized-state schema version.
	SchemaVersion int `json:"schema_version"`

	// Seq is the sequence number of the last applied event.
	Seq uint64 `json:"seq"`

	// Cards maps card ID to card.
	Cards map[string]*Card `json:"cards"`
}

// NewSpecState returns the empty state for a spec that has no events yet.
func NewSpecState(specID string) *SpecState {
	return &SpecState{
		SpecID:        specID,
		SchemaVersion: StateSchemaVersion,
		Cards:         make(map[string]*Card),
	}
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (s *SpecState) Clone() *SpecState {
	out := *s
	out.Cards = make(map[string]*Card, len(s.Cards))

	for id, card := range s.Cards {
		out.Cards[id] = card.clone()
	}

	return &out
}

// Card returns the card with the given ID, or nil if absent.
func (s *SpecState) Card(id string) *Card {
	return s.Cards[id]
}

// isAncestor reports whether ancestor is reachable from id by following
// Parent links. Used to keep the card forest acyclic on moves.
func (s *SpecState) isAncestor(ancestor, id string) bool {
	for id != "" {
		if id == ancestor {
			return true
		}

		card := s.Cards[id]
		if card == nil {
			return false
		}

		id = card.Parent
	}

	return false
}

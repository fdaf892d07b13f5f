package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of an event.
type Type string

// Spec lifecycle events.
const (
	// TypeSpecCreated records the creation of a spec.
	TypeSpecCreated Type = "spec.created"
	// TypeSpecRenamed records a spec name change.
	TypeSpecRenamed Type = "spec.renamed"
)

// Card events.
const (
	// TypeCardCreated records the creation of a card.
	TypeCardCreated Type = "card.created"
	// TypeCardRetitled records a card title change.
	TypeCardRetitled Type = "card.retitled"
	// TypeCardStatusChanged records a card status transition.
	TypeCardStatusChanged Type = "card.status_changed"
	// TypeCardFieldSet records setting a free-form field.
	TypeCardFieldSet Type = "card.field_set"
	// TypeCardFieldUnset records removing a free-form field.
	TypeCardFieldUnset Type = "card.field_unset"
	// TypeCardMoved records a parent change.
	TypeCardMoved Type = "card.moved"
	// TypeCardDeleted records the deletion of a card.
	TypeCardDeleted Type = "card.deleted"
)

// eventSchemaVersions maps each event type to the newest payload schema this
// reader understands. Bump a type's version when its payload shape changes.
var eventSchemaVersions = map[Type]int{
	TypeSpecCreated:       1,
	TypeSpecRenamed:       1,
	TypeCardCreated:       1,
	TypeCardRetitled:      1,
	TypeCardStatusChanged: 1,
	TypeCardFieldSet:      1,
	TypeCardFieldUnset:    1,
	TypeCardMoved:         1,
	TypeCardDeleted:       1,
}

// Event is the immutable, sequenced record of one state change.
//
// Seq is assigned by the event log on append (starts at 1, gapless per spec).
// Events minted by [Validate] carry Seq zero until appended.
type Event struct {
	// Sequence number within the spec.
	Seq uint64 `json:"seq"`

	// Spec this event belongs to.
	SpecID string `json:"spec_id"`

	// Event type.
	Type Type `json:"type"`

	// Payload schema version for this type.
	SchemaVersion int `json:"schema_version"`

	// When the event occurred (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Type-specific payload.
	Payload json.RawMessage `json:"payload"`
}

// SpecCreatedPayload is the payload of [TypeSpecCreated].
type SpecCreatedPayload struct {
	Name string `json:"name"`
}

// SpecRenamedPayload is the payload of [TypeSpecRenamed].
type SpecRenamedPayload struct {
	Name string `json:"name"`
}

// CardCreatedPayload is the payload of [TypeCardCreated].
type CardCreatedPayload struct {
	CardID string            `json:"card_id"`
	Title  string            `json:"title"`
	Status CardStatus        `json:"status"`
	Fields map[string]string `json:"fields,omitempty"`
	Parent string            `json:"parent,omitempty"`
}

// CardRetitledPayload is the payload of [TypeCardRetitled].
type CardRetitledPayload struct {
	CardID string `json:"card_id"`
	Title  string `json:"title"`
}

// CardStatusChangedPayload is the payload of [TypeCardStatusChanged].
type CardStatusChangedPayload struct {
	CardID string     `json:"card_id"`
	Status CardStatus `json:"status"`
}

// CardFieldSetPayload is the payload of [TypeCardFieldSet].
type CardFieldSetPayload struct {
	CardID string `json:"card_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// CardFieldUnsetPayload is the payload of [TypeCardFieldUnset].
type CardFieldUnsetPayload struct {
	CardID string `json:"card_id"`
	Key    string `json:"key"`
}

// CardMovedPayload is the payload of [TypeCardMoved].
type CardMovedPayload struct {
	CardID string `json:"card_id"`
	Parent string `json:"parent,omitempty"`
}

// CardDeletedPayload is the payload of [TypeCardDeleted].
type CardDeletedPayload struct {
	CardID string `json:"card_id"`
}

// newEvent mints an unsequenced event with the current schema version for typ.
func newEvent(specID string, typ Type, ts time.Time, payload any) (Event, error) {
	version, ok := eventSchemaVersions[typ]
	if !ok {
		return Event{}, fmt.Errorf("mint %q: %w", typ, ErrUnknownEvent)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %q payload: %w", typ, err)
	}

	return Event{
		SpecID:        specID,
		Type:          typ,
		SchemaVersion: version,
		Timestamp:     ts.UTC(),
		Payload:       raw,
	}, nil
}

// CheckEvent rejects events this reader cannot interpret: unknown types and
// payload schema versions newer than this vocabulary.
func CheckEvent(ev Event) error {
	version, ok := eventSchemaVersions[ev.Type]
	if !ok {
		return fmt.Errorf("event %q: %w", ev.Type, ErrUnknownEvent)
	}

	if ev.SchemaVersion < 1 || ev.SchemaVersion > version {
		return fmt.Errorf("event %q version %d (max %d): %w",
			ev.Type, ev.SchemaVersion, version, ErrUnknownSchema)
	}

	return nil
}

// EventCardID returns the card ID an event refers to, or ok=false for
// spec-level events. It tolerates undecodable payloads by reporting no card.
func EventCardID(ev Event) (string, bool) {
	switch ev.Type {
	case TypeCardCreated, TypeCardRetitled, TypeCardStatusChanged,
		TypeCardFieldSet, TypeCardFieldUnset, TypeCardMoved, TypeCardDeleted:
	default:
		return "", false
	}

	var ref struct {
		CardID string `json:"card_id"`
	}

	err := json.Unmarshal(ev.Payload, &ref)
	if err != nil || ref.CardID == "" {
		return "", false
	}

	return ref.CardID, true
}

// decodePayload unmarshals an event payload after CheckEvent-style gating.
func decodePayload[T any](ev Event) (T, error) {
	var out T

	err := CheckEvent(ev)
	if err != nil {
		return out, err
	}

	err = json.Unmarshal(ev.Payload, &out)
	if err != nil {
		return out, fmt.Errorf("decode %q payload: %w", ev.Type, err)
	}

	return out, nil
}

package domain

import (
	"fmt"
	"time"
)

// Validate checks cmd against state and derives the events that record it.
//
// Validate is pure with respect to state: it never mutates its input and has
// no effect on failure. A command either yields its full event list or a
// typed error ([ErrNotFound], [ErrConflict], [ErrInvalidPayload]); there is
// no partial application. Commands whose effect is already present yield an
// empty event list.
//
// now becomes the timestamp of every derived event.
func Validate(state *SpecState, cmd Command, now time.Time) ([]Event, error) {
	if state == nil {
		return nil, fmt.Errorf("validate: state is nil")
	}

	if create, ok := cmd.(CreateSpec); ok {
		return validateCreateSpec(state, create, now)
	}

	// Every other command requires an initialized spec.
	if state.Seq == 0 {
		return nil, fmt.Errorf("spec %s has no events: %w", state.SpecID, ErrNotFound)
	}

	switch c := cmd.(type) {
	case RenameSpec:
		return validateRenameSpec(state, c, now)
	case CreateCard:
		return validateCreateCard(state, c, now)
	case RetitleCard:
		return validateRetitleCard(state, c, now)
	case UpdateCardStatus:
		return validateUpdateCardStatus(state, c, now)
	case SetCardField:
		return validateSetCardField(state, c, now)
	case UnsetCardField:
		return validateUnsetCardField(state, c, now)
	case MoveCard:
		return validateMoveCard(state, c, now)
	case DeleteCard:
		return validateDeleteCard(state, c, now)
	default:
		return nil, fmt.Errorf("unsupported command %T: %w", cmd, ErrInvalidPayload)
	}
}

func validateCreateSpec(state *SpecState, cmd CreateSpec, now time.Time) ([]Event, error) {
	if state.Seq != 0 {
		return nil, fmt.Errorf("spec %s already exists: %w", state.SpecID, ErrConflict)
	}

	if cmd.Name == "" {
		return nil, fmt.Errorf("spec name is required: %w", ErrInvalidPayload)
	}

	ev, err := newEvent(state.SpecID, TypeSpecCreated, now, SpecCreatedPayload{Name: cmd.Name})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateRenameSpec(state *SpecState, cmd RenameSpec, now time.Time) ([]Event, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("spec name is required: %w", ErrInvalidPayload)
	}

	if cmd.Name == state.Name {
		return nil, nil
	}

	ev, err := newEvent(state.SpecID, TypeSpecRenamed, now, SpecRenamedPayload{Name: cmd.Name})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateCreateCard(state *SpecState, cmd CreateCard, now time.Time) ([]Event, error) {
	cardID := cmd.CardID

	if cardID == "" {
		id, err := NewID()
		if err != nil {
			return nil, fmt.Errorf("create card: %w", err)
		}

		cardID = id
	} else {
		err := ValidateID(cardID)
		if err != nil {
			return nil, fmt.Errorf("create card: %w", err)
		}
	}

	if state.Card(cardID) != nil {
		return nil, fmt.Errorf("card %s already exists: %w", cardID, ErrConflict)
	}

	if cmd.Title == "" {
		return nil, fmt.Errorf("card title is required: %w", ErrInvalidPayload)
	}

	status := cmd.Status
	if status == "" {
		status = StatusTodo
	}

	if !status.IsValid() {
		return nil, fmt.Errorf("status %q: %w", status, ErrInvalidPayload)
	}

	if cmd.Parent != "" && state.Card(cmd.Parent) == nil {
		return nil, fmt.Errorf("parent card %s: %w", cmd.Parent, ErrNotFound)
	}

	payload := CardCreatedPayload{
		CardID: cardID,
		Title:  cmd.Title,
		Status: status,
		Parent: cmd.Parent,
	}

	if len(cmd.Fields) > 0 {
		payload.Fields = make(map[string]string, len(cmd.Fields))
		for k, v := range cmd.Fields {
			if k == "" {
				return nil, fmt.Errorf("empty field key: %w", ErrInvalidPayload)
			}

			payload.Fields[k] = v
		}
	}

	ev, err := newEvent(state.SpecID, TypeCardCreated, now, payload)
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateRetitleCard(state *SpecState, cmd RetitleCard, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	if cmd.Title == "" {
		return nil, fmt.Errorf("card title is required: %w", ErrInvalidPayload)
	}

	if cmd.Title == card.Title {
		return nil, nil
	}

	ev, err := newEvent(state.SpecID, TypeCardRetitled, now,
		CardRetitledPayload{CardID: cmd.CardID, Title: cmd.Title})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateUpdateCardStatus(state *SpecState, cmd UpdateCardStatus, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	if !cmd.Status.IsValid() {
		return nil, fmt.Errorf("status %q: %w", cmd.Status, ErrInvalidPayload)
	}

	if cmd.Status == card.Status {
		return nil, nil
	}

	ev, err := newEvent(state.SpecID, TypeCardStatusChanged, now,
		CardStatusChangedPayload{CardID: cmd.CardID, Status: cmd.Status})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateSetCardField(state *SpecState, cmd SetCardField, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	if cmd.Key == "" {
		return nil, fmt.Errorf("empty field key: %w", ErrInvalidPayload)
	}

	if current, ok := card.Fields[cmd.Key]; ok && current == cmd.Value {
		return nil, nil
	}

	ev, err := newEvent(state.SpecID, TypeCardFieldSet, now,
		CardFieldSetPayload{CardID: cmd.CardID, Key: cmd.Key, Value: cmd.Value})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateUnsetCardField(state *SpecState, cmd UnsetCardField, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	if cmd.Key == "" {
		return nil, fmt.Errorf("empty field key: %w", ErrInvalidPayload)
	}

	if _, ok := card.Fields[cmd.Key]; !ok {
		return nil, nil
	}

	ev, err := newEvent(state.SpecID, TypeCardFieldUnset, now,
		CardFieldUnsetPayload{CardID: cmd.CardID, Key: cmd.Key})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateMoveCard(state *SpecState, cmd MoveCard, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	if cmd.Parent == card.Parent {
		return nil, nil
	}

	if cmd.Parent != "" {
		if state.Card(cmd.Parent) == nil {
			return nil, fmt.Errorf("parent card %s: %w", cmd.Parent, ErrNotFound)
		}

		// Moving under itself or a descendant would create a cycle.
		if state.isAncestor(cmd.CardID, cmd.Parent) {
			return nil, fmt.Errorf("card %s cannot own ancestor %s: %w",
				cmd.Parent, cmd.CardID, ErrConflict)
		}
	}

	ev, err := newEvent(state.SpecID, TypeCardMoved, now,
		CardMovedPayload{CardID: cmd.CardID, Parent: cmd.Parent})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

func validateDeleteCard(state *SpecState, cmd DeleteCard, now time.Time) ([]Event, error) {
	card := state.Card(cmd.CardID)
	if card == nil {
		return nil, fmt.Errorf("card %s: %w", cmd.CardID, ErrNotFound)
	}

	for id, other := range state.Cards {
		if other.Parent == cmd.CardID {
			return nil, fmt.Errorf("card %s still owns %s: %w", cmd.CardID, id, ErrConflict)
		}
	}

	ev, err := newEvent(state.SpecID, TypeCardDeleted, now,
		CardDeletedPayload{CardID: cmd.CardID})
	if err != nil {
		return nil, err
	}

	return []Event{ev}, nil
}

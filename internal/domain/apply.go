package domain

import "fmt"

// Apply folds one event into state.
//
// Apply is total over the event vocabulary: every known type has a defined
// effect, and unknown types or future schema versions are rejected with
// [ErrUnknownEvent]/[ErrUnknownSchema]. An event that references state that
// does not exist (for example a status change for a missing card) can only
// come from a damaged history; Apply reports it as an error and leaves state
// untouched so the recovery engine can fail the spec instead of diverging.
//
// Events must be applied in ascending sequence order. On success state.Seq
// advances to ev.Seq.
func Apply(state *SpecState, ev Event) error {
	if state == nil {
		return fmt.Errorf("apply: state is nil")
	}

	if ev.Seq != state.Seq+1 {
		return fmt.Errorf("apply: event seq %d does not follow state seq %d", ev.Seq, state.Seq)
	}

	var err error

	switch ev.Type {
	case TypeSpecCreated:
		err = applySpecCreated(state, ev)
	case TypeSpecRenamed:
		err = applySpecRenamed(state, ev)
	case TypeCardCreated:
		err = applyCardCreated(state, ev)
	case TypeCardRetitled:
		err = applyCardRetitled(state, ev)
	case TypeCardStatusChanged:
		err = applyCardStatusChanged(state, ev)
	case TypeCardFieldSet:
		err = applyCardFieldSet(state, ev)
	case TypeCardFieldUnset:
		err = applyCardFieldUnset(state, ev)
	case TypeCardMoved:
		err = applyCardMoved(state, ev)
	case TypeCardDeleted:
		err = applyCardDeleted(state, ev)
	default:
		err = fmt.Errorf("event %q: %w", ev.Type, ErrUnknownEvent)
	}

	if err != nil {
		return err
	}

	state.Seq = ev.Seq

	return nil
}

func applySpecCreated(state *SpecState, ev Event) error {
	payload, err := decodePayload[SpecCreatedPayload](ev)
	if err != nil {
		return err
	}

	state.Name = payload.Name
	state.CreatedAt = ev.Timestamp

	return nil
}

func applySpecRenamed(state *SpecState, ev Event) error {
	payload, err := decodePayload[SpecRenamedPayload](ev)
	if err != nil {
		return err
	}

	state.Name = payload.Name

	return nil
}

func applyCardCreated(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardCreatedPayload](ev)
	if err != nil {
		return err
	}

	if state.Cards[payload.CardID] != nil {
		return fmt.Errorf("apply %q: card %s already exists", ev.Type, payload.CardID)
	}

	card := &Card{
		ID:        payload.CardID,
		Title:     payload.Title,
		Status:    payload.Status,
		Parent:    payload.Parent,
		CreatedAt: ev.Timestamp,
		UpdatedAt: ev.Timestamp,
	}

	if len(payload.Fields) > 0 {
		card.Fields = make(map[string]string, len(payload.Fields))
		for k, v := range payload.Fields {
			card.Fields[k] = v
		}
	}

	state.Cards[payload.CardID] = card

	return nil
}

func applyCardRetitled(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardRetitledPayload](ev)
	if err != nil {
		return err
	}

	card := state.Cards[payload.CardID]
	if card == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	card.Title = payload.Title
	card.UpdatedAt = ev.Timestamp

	return nil
}

func applyCardStatusChanged(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardStatusChangedPayload](ev)
	if err != nil {
		return err
	}

	card := state.Cards[payload.CardID]
	if card == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	card.Status = payload.Status
	card.UpdatedAt = ev.Timestamp

	return nil
}

func applyCardFieldSet(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardFieldSetPayload](ev)
	if err != nil {
		return err
	}

	card := state.Cards[payload.CardID]
	if card == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	if card.Fields == nil {
		card.Fields = make(map[string]string, 1)
	}

	card.Fields[payload.Key] = payload.Value
	card.UpdatedAt = ev.Timestamp

	return nil
}

func applyCardFieldUnset(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardFieldUnsetPayload](ev)
	if err != nil {
		return err
	}

	card := state.Cards[payload.CardID]
	if card == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	delete(card.Fields, payload.Key)
	card.UpdatedAt = ev.Timestamp

	return nil
}

func applyCardMoved(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardMovedPayload](ev)
	if err != nil {
		return err
	}

	card := state.Cards[payload.CardID]
	if card == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	card.Parent = payload.Parent
	card.UpdatedAt = ev.Timestamp

	return nil
}

func applyCardDeleted(state *SpecState, ev Event) error {
	payload, err := decodePayload[CardDeletedPayload](ev)
	if err != nil {
		return err
	}

	if state.Cards[payload.CardID] == nil {
		return fmt.Errorf("apply %q: card %s missing", ev.Type, payload.CardID)
	}

	delete(state.Cards, payload.CardID)

	return nil
}

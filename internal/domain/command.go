package domain

// Command is a transient client intent. Commands are validated against
// current state, converted into events, and then discarded; they are never
// persisted directly.
type Command interface {
	isCommand()
}

// CreateSpec initializes a spec. It must be the first command of a spec.
type CreateSpec struct {
	// Human-readable spec name (required).
	Name string
}

// RenameSpec changes the spec name.
type RenameSpec struct {
	Name string
}

// CreateCard adds a new card to the spec.
type CreateCard struct {
	// Card ID (optional; a UUIDv7 is generated when empty).
	CardID string

	// Title (required, non-empty).
	Title string

	// Initial status (optional, defaults to [StatusTodo]).
	Status CardStatus

	// Initial free-form fields (optional).
	Fields map[string]string

	// Parent card ID (optional; must exist when set).
	Parent string
}

// RetitleCard changes a card title.
type RetitleCard struct {
	CardID string
	Title  string
}

// UpdateCardStatus transitions a card to another lifecycle status.
type UpdateCardStatus struct {
	CardID string
	Status CardStatus
}

// SetCardField sets one free-form field on a card.
type SetCardField struct {
	CardID string
	Key    string
	Value  string
}

// UnsetCardField removes one free-form field from a card.
type UnsetCardField struct {
	CardID string
	Key    string
}

// MoveCard reparents a card. An empty Parent makes it a root card.
type MoveCard struct {
	CardID string
	Parent string
}

// DeleteCard removes a card. Cards that still own children cannot be deleted.
type DeleteCard struct {
	CardID string
}

func (CreateSpec) isCommand()       {}
func (RenameSpec) isCommand()       {}
func (CreateCard) isCommand()       {}
func (RetitleCard) isCommand()      {}
func (UpdateCardStatus) isCommand() {}
func (SetCardField) isCommand()     {}
func (UnsetCardField) isCommand()   {}
func (MoveCard) isCommand()         {}
func (DeleteCard) isCommand()       {}

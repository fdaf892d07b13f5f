package domain

import "time"

// CardStatus is a card lifecycle state. The set is closed; status history
// lives in the event journal, not on the card.
type CardStatus string

const (
	// StatusTodo marks work that has not started.
	StatusTodo CardStatus = "todo"
	// StatusDoing marks work in progress.
	StatusDoing CardStatus = "doing"
	// StatusBlocked marks work waiting on something else.
	StatusBlocked CardStatus = "blocked"
	// StatusDone marks completed work.
	StatusDone CardStatus = "done"
	// StatusArchived marks work removed from active tracking.
	StatusArchived CardStatus = "archived"
)

// IsValid reports whether s is a member of the closed status set.
func (s CardStatus) IsValid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusBlocked, StatusDone, StatusArchived:
		return true
	default:
		return false
	}
}

// Card is a unit of tracked content within a spec.
//
// The ID is immutable once created and unique within the spec. Parent is
// structural ownership (card ID or empty for a root card); the cards of a
// spec always form a forest, never a cycle.
type Card struct {
	// Card identifier (UUIDv7).
	ID string `json:"id"`

	// Title (required, non-empty).
	Title string `json:"title"`

	// Status from the closed lifecycle set.
	Status CardStatus `json:"status"`

	// Free-form key/value fields (optional).
	Fields map[string]string `json:"fields,omitempty"`

	// Parent card ID (optional, empty for root cards).
	Parent string `json:"parent,omitempty"`

	// Creation timestamp (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Last mutation timestamp (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a deep copy so readers never alias writer-owned maps.
func (c *Card) clone() *Card {
	out := *c

	if c.Fields != nil {
		out.Fields = make(map[string]string, len(c.Fields))
		for k, v := range c.Fields {
			out.Fields[k] = v
		}
	}

	return &out
}

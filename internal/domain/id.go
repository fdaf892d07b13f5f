package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a time-ordered UUIDv7 identifier for specs and cards.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new uuidv7: %w", err)
	}

	return id.String(), nil
}

// ValidateID checks that s is a well-formed UUIDv7 string.
func ValidateID(s string) error {
	if s == "" {
		return fmt.Errorf("empty id: %w", ErrInvalidPayload)
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w: %w", s, ErrInvalidPayload, err)
	}

	if id.Version() != 7 {
		return fmt.Errorf("id %q is not UUIDv7: %w", s, ErrInvalidPayload)
	}

	return nil
}

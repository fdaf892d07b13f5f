// Package export renders a reconstructed spec state into structured text
// formats: a Markdown document, a YAML document, and a Graphviz DOT graph
// of the card hierarchy.
//
// Renderers are pure read-only transformations: they take whatever state
// they are handed, never mutate it, and never trigger recovery. Output is
// deterministic for a given state.
package export

import (
	"sort"

	"github.com/specdeck/specdeck/internal/domain"
)

// sortedCards returns the spec's cards ordered by creation time, then ID,
// so every renderer emits a stable listing.
func sortedCards(state *domain.SpecState) []*domain.Card {
	cards := make([]*domain.Card, 0, len(state.Cards))

	for _, card := range state.Cards {
		cards = append(cards, card)
	}

	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}

		return cards[i].ID < cards[j].ID
	})

	return cards
}

// childrenByParent groups sorted cards by their parent ID.
func childrenByParent(cards []*domain.Card) map[string][]*domain.Card {
	children := make(map[string][]*domain.Card)

	for _, card := range cards {
		children[card.Parent] = append(children[card.Parent], card)
	}

	return children
}

// sortedKeys returns map keys in lexical order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

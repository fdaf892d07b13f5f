package export

import (
	"fmt"
	"strings"

	"github.com/specdeck/specdeck/internal/domain"
)

// statusColors tints graph nodes by lifecycle status.
var statusColors = map[domain.CardStatus]string{
	domain.StatusTodo:     "white",
	domain.StatusDoing:    "lightyellow",
	domain.StatusBlocked:  "lightcoral",
	domain.StatusDone:     "lightgreen",
	domain.StatusArchived: "lightgray",
}

// DOT renders the card hierarchy as a Graphviz digraph. Edges point from
// parent to child; node labels carry the title and status.
func DOT(state *domain.SpecState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "digraph %q {\n", state.Name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled];\n")

	cards := sortedCards(state)

	for _, card := range cards {
		color, ok := statusColors[card.Status]
		if !ok {
			color = "white"
		}

		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q];\n",
			card.ID, fmt.Sprintf("%s\n[%s]", escapeLabel(card.Title), card.Status), color)
	}

	for _, card := range cards {
		if card.Parent == "" || state.Card(card.Parent) == nil {
			continue
		}

		fmt.Fprintf(&b, "  %q -> %q;\n", card.Parent, card.ID)
	}

	b.WriteString("}\n")

	return b.String()
}

func escapeLabel(s string) string {
	return strings.NewReplacer("\"", "\\\"", "\n", " ").Replace(s)
}

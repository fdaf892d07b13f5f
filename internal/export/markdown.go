package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/specdeck/specdeck/internal/domain"
)

// statusMarks maps card statuses to task-list style markers.
var statusMarks = map[domain.CardStatus]string{
	domain.StatusTodo:     " ",
	domain.StatusDoing:    "~",
	domain.StatusBlocked:  "!",
	domain.StatusDone:     "x",
	domain.StatusArchived: "-",
}

// Markdown renders state as a Markdown document: the spec header followed
// by the card forest as nested task-list items with their fields.
func Markdown(state *domain.SpecState) string {
	var b strings.Builder

	b.WriteString("# ")
	b.WriteString(state.Name)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "- Spec: `%s`\n", state.SpecID)
	fmt.Fprintf(&b, "- Created: %s\n", state.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Revision: %d\n", state.Seq)
	fmt.Fprintf(&b, "- Cards: %d\n\n", len(state.Cards))

	cards := sortedCards(state)
	children := childrenByParent(cards)

	// Roots include cards whose parent no longer exists.
	for _, card := range cards {
		if card.Parent != "" && state.Card(card.Parent) != nil {
			continue
		}

		writeCardMarkdown(&b, card, children, 0)
	}

	return b.String()
}

func writeCardMarkdown(b *strings.Builder, card *domain.Card, children map[string][]*domain.Card, depth int) {
	indent := strings.Repeat("  ", depth)

	mark, ok := statusMarks[card.Status]
	if !ok {
		mark = "?"
	}

	fmt.Fprintf(b, "%s- [%s] %s (`%s`)\n", indent, mark, card.Title, card.ID)

	for _, key := range sortedKeys(card.Fields) {
		fmt.Fprintf(b, "%s  - %s: %s\n", indent, key, card.Fields[key])
	}

	for _, child := range children[card.ID] {
		writeCardMarkdown(b, child, children, depth+1)
	}
}

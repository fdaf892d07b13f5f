package export

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specdeck/specdeck/internal/domain"
)

// yamlDoc is the exported YAML document shape.
type yamlDoc struct {
	Spec     string     `yaml:"spec"`
	Name     string     `yaml:"name"`
	Created  string     `yaml:"created"`
	Revision uint64     `yaml:"revision"`
	Cards    []yamlCard `yaml:"cards"`
}

type yamlCard struct {
	ID      string            `yaml:"id"`
	Title   string            `yaml:"title"`
	Status  string            `yaml:"status"`
	Parent  string            `yaml:"parent,omitempty"`
	Fields  map[string]string `yaml:"fields,omitempty"`
	Created string            `yaml:"created"`
	Updated string            `yaml:"updated"`
}

// YAML renders state as a YAML document with cards in stable order.
func YAML(state *domain.SpecState) ([]byte, error) {
	doc := yamlDoc{
		Spec:     state.SpecID,
		Name:     state.Name,
		Created:  state.CreatedAt.UTC().Format(time.RFC3339),
		Revision: state.Seq,
		Cards:    make([]yamlCard, 0, len(state.Cards)),
	}

	for _, card := range sortedCards(state) {
		doc.Cards = append(doc.Cards, yamlCard{
			ID:      card.ID,
			Title:   card.Title,
			Status:  string(card.Status),
			Parent:  card.Parent,
			Fields:  card.Fields,
			Created: card.CreatedAt.UTC().Format(time.RFC3339),
			Updated: card.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml export: %w", err)
	}

	return out, nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/specdeck/specdeck/internal/domain"
	"github.com/specdeck/specdeck/internal/index"
)

// expectFlag registers the shared --expect flag used for optimistic
// concurrency. nil means "no expectation".
func expectFlag(fs *flag.FlagSet) *string {
	return fs.String("expect", "", "expected current spec version; fails on mismatch")
}

func parseExpect(raw *string) (*uint64, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var v uint64
	if _, err := fmt.Sscanf(*raw, "%d", &v); err != nil {
		return nil, fmt.Errorf("invalid --expect value %q", *raw)
	}
	return &v, nil
}

// submit runs one command against a spec and prints the resulting version.
func submit(ctx context.Context, env *cmdEnv, specID string, cmd domain.Command, expectRaw *string) error {
	expect, err := parseExpect(expectRaw)
	if err != nil {
		return err
	}

	st, err := env.store(ctx)
	if err != nil {
		return err
	}

	events, err := st.Submit(ctx, specID, cmd, expect)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(env.io.Out, "no change")
		return nil
	}

	fmt.Fprintf(env.io.Out, "ok\tv%d\n", events[len(events)-1].Seq)
	return nil
}

func cmdCardAdd() *Command {
	cmd := &Command{
		Usage: "specdeck card add <spec-id> <title>",
		Short: "add a card to a spec",
		Long: `Adds a card and prints its ID. Fields are given as repeated
--field key=value flags.`,
	}
	cmd.Flags = newFlagSet("card add")
	var (
		status string
		parent string
		fields []string
	)
	cmd.Flags.StringVar(&status, "status", "", "initial status (default todo)")
	cmd.Flags.StringVar(&parent, "parent", "", "parent card ID")
	cmd.Flags.StringArrayVar(&fields, "field", nil, "free-form field, key=value")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) < 2 {
			return usageErrf(cmd, "need a spec ID and a title")
		}

		fieldMap := map[string]string{}
		for _, f := range fields {
			k, v, ok := strings.Cut(f, "=")
			if !ok || k == "" {
				return usageErrf(cmd, "invalid --field %q, want key=value", f)
			}
			fieldMap[k] = v
		}

		cardID, err := domain.NewID()
		if err != nil {
			return err
		}

		c := domain.CreateCard{
			CardID: cardID,
			Title:  strings.Join(args[1:], " "),
			Status: domain.CardStatus(status),
			Fields: fieldMap,
			Parent: parent,
		}

		if err := submit(ctx, env, args[0], c, expect); err != nil {
			return err
		}

		fmt.Fprintln(env.io.Out, c.CardID)
		return nil
	}
	return cmd
}

func cmdCardRetitle() *Command {
	cmd := &Command{
		Usage: "specdeck card retitle <spec-id> <card-id> <title>",
		Short: "change a card title",
	}
	cmd.Flags = newFlagSet("card retitle")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) < 3 {
			return usageErrf(cmd, "need a spec ID, a card ID and a title")
		}

		return submit(ctx, env, args[0], domain.RetitleCard{
			CardID: args[1],
			Title:  strings.Join(args[2:], " "),
		}, expect)
	}
	return cmd
}

func cmdCardStatus() *Command {
	cmd := &Command{
		Usage: "specdeck card status <spec-id> <card-id> <status>",
		Short: "change a card status",
		Long:  "Valid statuses: todo, doing, blocked, done, archived.",
	}
	cmd.Flags = newFlagSet("card status")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 3 {
			return usageErrf(cmd, "need a spec ID, a card ID and a status")
		}

		return submit(ctx, env, args[0], domain.UpdateCardStatus{
			CardID: args[1],
			Status: domain.CardStatus(args[2]),
		}, expect)
	}
	return cmd
}

func cmdCardSet() *Command {
	cmd := &Command{
		Usage: "specdeck card set <spec-id> <card-id> <key> <value>",
		Short: "set a free-form card field",
	}
	cmd.Flags = newFlagSet("card set")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) < 4 {
			return usageErrf(cmd, "need a spec ID, a card ID, a key and a value")
		}

		return submit(ctx, env, args[0], domain.SetCardField{
			CardID: args[1],
			Key:    args[2],
			Value:  strings.Join(args[3:], " "),
		}, expect)
	}
	return cmd
}

func cmdCardUnset() *Command {
	cmd := &Command{
		Usage: "specdeck card unset <spec-id> <card-id> <key>",
		Short: "remove a free-form card field",
	}
	cmd.Flags = newFlagSet("card unset")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 3 {
			return usageErrf(cmd, "need a spec ID, a card ID and a key")
		}

		return submit(ctx, env, args[0], domain.UnsetCardField{
			CardID: args[1],
			Key:    args[2],
		}, expect)
	}
	return cmd
}

func cmdCardMove() *Command {
	cmd := &Command{
		Usage: "specdeck card move <spec-id> <card-id>",
		Short: "reparent a card",
		Long:  "Without --parent the card becomes a root card.",
	}
	cmd.Flags = newFlagSet("card move")
	parent := cmd.Flags.String("parent", "", "new parent card ID")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 2 {
			return usageErrf(cmd, "need a spec ID and a card ID")
		}

		return submit(ctx, env, args[0], domain.MoveCard{
			CardID: args[1],
			Parent: *parent,
		}, expect)
	}
	return cmd
}

func cmdCardRemove() *Command {
	cmd := &Command{
		Usage: "specdeck card rm <spec-id> <card-id>",
		Short: "delete a card",
		Long:  "Cards that still have children cannot be deleted.",
	}
	cmd.Flags = newFlagSet("card rm")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 2 {
			return usageErrf(cmd, "need a spec ID and a card ID")
		}

		return submit(ctx, env, args[0], domain.DeleteCard{CardID: args[1]}, expect)
	}
	return cmd
}

func cmdCards() *Command {
	cmd := &Command{
		Usage: "specdeck cards",
		Short: "query cards across specs",
		Long:  "Queries the derived card index. Requires the index to be enabled.",
	}
	cmd.Flags = newFlagSet("cards")
	var (
		specID string
		status string
		parent string
		limit  int
	)
	cmd.Flags.StringVar(&specID, "spec", "", "restrict to one spec")
	cmd.Flags.StringVar(&status, "status", "", "filter by status")
	cmd.Flags.StringVar(&parent, "parent", "", "filter by parent card ID")
	cmd.Flags.IntVar(&limit, "limit", 0, "maximum number of rows")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 0 {
			return usageErrf(cmd, "unexpected arguments")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		ix := st.Index()
		if ix == nil {
			return fmt.Errorf("card index is disabled; use %q instead", "specdeck show")
		}

		rows, err := ix.QueryCards(ctx, index.QueryOptions{
			SpecID: specID,
			Status: domain.CardStatus(status),
			Parent: parent,
			Limit:  limit,
		})
		if err != nil {
			return err
		}

		for _, r := range rows {
			fmt.Fprintf(env.io.Out, "%s\t%s\t%-8s\t%s\n", r.SpecID, r.CardID, r.Status, r.Title)
		}
		return nil
	}
	return cmd
}

// printCardTree writes an indented card hierarchy with status markers.
func printCardTree(w io.Writer, state *domain.SpecState) {
	cards := make([]*domain.Card, 0, len(state.Cards))
	for _, c := range state.Cards {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		}
		return cards[i].ID < cards[j].ID
	})

	children := map[string][]*domain.Card{}
	for _, c := range cards {
		children[c.Parent] = append(children[c.Parent], c)
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, c := range children[parent] {
			fmt.Fprintf(w, "%s[%s] %s  (%s)\n", strings.Repeat("  ", depth), c.Status, c.Title, c.ID)
			walk(c.ID, depth+1)
		}
	}
	walk("", 0)

	// Cards whose parent no longer resolves still get printed, as roots.
	for _, c := range cards {
		if c.Parent != "" {
			if _, ok := state.Cards[c.Parent]; !ok {
				fmt.Fprintf(w, "[%s] %s  (%s)\n", c.Status, c.Title, c.ID)
				walk(c.ID, 1)
			}
		}
	}
}

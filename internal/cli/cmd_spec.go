package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/specdeck/specdeck/internal/domain"
)

func cmdCreate() *Command {
	cmd := &Command{
		Usage: "specdeck create <name>",
		Short: "create a new spec",
		Long:  "Creates an empty spec and prints its ID.",
	}
	cmd.Flags = newFlagSet("create")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) == 0 {
			return usageErrf(cmd, "missing spec name")
		}
		name := strings.Join(args, " ")

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		specID, err := st.CreateSpec(ctx, name)
		if err != nil {
			return err
		}

		fmt.Fprintln(env.io.Out, specID)
		return nil
	}
	return cmd
}

func cmdRename() *Command {
	cmd := &Command{
		Usage: "specdeck rename <spec-id> <name>",
		Short: "rename a spec",
	}
	cmd.Flags = newFlagSet("rename")
	expect := expectFlag(cmd.Flags)
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) < 2 {
			return usageErrf(cmd, "need a spec ID and a new name")
		}

		return submit(ctx, env, args[0], domain.RenameSpec{Name: strings.Join(args[1:], " ")}, expect)
	}
	return cmd
}

func cmdSpecs() *Command {
	cmd := &Command{
		Usage: "specdeck specs",
		Short: "list all specs",
	}
	cmd.Flags = newFlagSet("specs")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 0 {
			return usageErrf(cmd, "unexpected arguments")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		ids, err := st.ListSpecIDs()
		if err != nil {
			return err
		}

		for _, id := range ids {
			state, err := st.GetState(ctx, id)
			if err != nil {
				fmt.Fprintf(env.io.Out, "%s\t(unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(env.io.Out, "%s\t%s\tv%d\t%d cards\n", id, state.Name, state.Seq, len(state.Cards))
		}
		return nil
	}
	return cmd
}

func cmdShow() *Command {
	cmd := &Command{
		Usage: "specdeck show <spec-id>",
		Short: "show a spec and its cards",
	}
	cmd.Flags = newFlagSet("show")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 1 {
			return usageErrf(cmd, "need exactly one spec ID")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		state, err := st.GetState(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(env.io.Out, "%s  (%s, v%d)\n\n", state.Name, state.SpecID, state.Seq)
		printCardTree(env.io.Out, state)
		return nil
	}
	return cmd
}

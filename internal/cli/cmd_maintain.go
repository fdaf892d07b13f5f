package cli

import (
	"context"
	"fmt"
)

func cmdSnapshot() *Command {
	cmd := &Command{
		Usage: "specdeck snapshot <spec-id>",
		Short: "force a snapshot of a spec",
	}
	cmd.Flags = newFlagSet("snapshot")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 1 {
			return usageErrf(cmd, "need exactly one spec ID")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		if err := st.Snapshot(ctx, args[0]); err != nil {
			return err
		}

		fmt.Fprintln(env.io.Out, "ok")
		return nil
	}
	return cmd
}

func cmdCompact() *Command {
	cmd := &Command{
		Usage: "specdeck compact <spec-id>",
		Short: "drop log events already covered by the snapshot",
	}
	cmd.Flags = newFlagSet("compact")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 1 {
			return usageErrf(cmd, "need exactly one spec ID")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		if err := st.Compact(ctx, args[0]); err != nil {
			return err
		}

		fmt.Fprintln(env.io.Out, "ok")
		return nil
	}
	return cmd
}

func cmdReindex() *Command {
	cmd := &Command{
		Usage: "specdeck reindex",
		Short: "rebuild the derived card index from the event logs",
	}
	cmd.Flags = newFlagSet("reindex")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 0 {
			return usageErrf(cmd, "unexpected arguments")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		if err := st.Reindex(ctx); err != nil {
			return err
		}

		fmt.Fprintln(env.io.Out, "ok")
		return nil
	}
	return cmd
}

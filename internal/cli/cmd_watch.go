package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

func cmdWatch() *Command {
	cmd := &Command{
		Usage: "specdeck watch <spec-id>",
		Short: "stream spec events as JSON lines",
		Long: `Prints every event of the spec after --after as one JSON object per
line, then keeps streaming live events until interrupted. When the
subscriber falls behind and events are dropped, a gap marker object
{"gap_from":N,"gap_to":M} is printed in their place.`,
	}
	cmd.Flags = newFlagSet("watch")
	after := cmd.Flags.Uint64("after", 0, "start after this sequence number")
	cmd.Exec = func(ctx context.Context, env *cmdEnv, args []string) error {
		if len(args) != 1 {
			return usageErrf(cmd, "need exactly one spec ID")
		}

		st, err := env.store(ctx)
		if err != nil {
			return err
		}

		ch, err := st.Subscribe(ctx, args[0], *after)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(env.io.Out)
		for item := range ch {
			if item.GapFrom != 0 {
				fmt.Fprintf(env.io.Out, "{\"gap_from\":%d,\"gap_to\":%d}\n", item.GapFrom, item.GapTo)
			}
			if err := enc.Encode(item.Event); err != nil {
				return err
			}
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	}
	return cmd
}

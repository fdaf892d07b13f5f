package cli

import (
	"context"
	"os"

	"github.com/specdeck/specdeck/internal/export"
)

func cmdExport() *Command {
	cmd := &Command{
		Usage: "specdeck export <spec-id>",
		Short: "render a spec to markdown, yaml or dot",
	}
	cmd.Flags = newFlagSet("export")
	var (
		format string
		out    string
	)
	cmd.Flags.StringVar(&format, "format", "md", "output format: md, yaml, dot")
	cmd.Flags.StringVarP(&out, "output", "o", "", "write to file instead of stdout")
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

		var data []byte
		switch format {
		case "md", "markdown":
			data = []byte(export.Markdown(state))
		case "yaml", "yml":
			data, err = export.YAML(state)
			if err != nil {
				return err
			}
		case "dot":
			data = []byte(export.DOT(state))
		default:
			return usageErrf(cmd, "unknown format %q", format)
		}

		if out == "" {
			_, err = env.io.Out.Write(data)
			return err
		}

		return os.WriteFile(out, data, 0o644)
	}
	return cmd
}

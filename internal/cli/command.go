package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// IO bundles the output streams for a single invocation. Commands never
// touch os.Stdout/os.Stderr directly so tests can capture output.
type IO struct {
	Out io.Writer
	Err io.Writer
}

// Command is a single subcommand. Exec receives the already-parsed
// positional arguments (flags removed by Flags.Parse).
type Command struct {
	// Usage is the one-line invocation, e.g. "specdeck card add <spec-id> <title>".
	Usage string

	// Short is the one-line description shown in the command list.
	Short string

	// Long is the extended help text. Optional.
	Long string

	// Flags holds the command-specific flags. Never nil.
	Flags *flag.FlagSet

	Exec func(ctx context.Context, env *cmdEnv, args []string) error
}

// Name returns the subcommand path from Usage, without the binary name.
func (c *Command) Name() string {
	fields := strings.Fields(c.Usage)
	if len(fields) < 2 {
		return c.Usage
	}
	name := fields[1]
	if len(fields) > 2 && !strings.HasPrefix(fields[2], "<") && !strings.HasPrefix(fields[2], "[") {
		name += " " + fields[2]
	}
	return name
}

func (c *Command) printHelp(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s\n\n%s\n", c.Usage, c.Short)
	if c.Long != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(c.Long))
	}
	if c.Flags.HasFlags() {
		fmt.Fprintf(w, "\nFlags:\n%s", c.Flags.FlagUsages())
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {}
	return fs
}

type usageError struct {
	cmd *Command
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrf(cmd *Command, format string, args ...any) error {
	return &usageError{cmd: cmd, msg: fmt.Sprintf(format, args...)}
}

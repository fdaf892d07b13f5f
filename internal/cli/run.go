package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/specdeck/specdeck/internal/config"
	"github.com/specdeck/specdeck/internal/store"
)

// Exit codes. Kept stable so scripts can branch on them.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitConflict = 3
	exitNotFound = 4
)

// cmdEnv is the shared state handed to every subcommand: resolved
// configuration, the output streams and a lazily opened store.
type cmdEnv struct {
	io     *IO
	cfg    config.Config
	logger zerolog.Logger

	st *store.Store
}

// store opens the data directory on first use so that commands which
// never touch it (help, version) do not create one.
func (e *cmdEnv) store(ctx context.Context) (*store.Store, error) {
	if e.st != nil {
		return e.st, nil
	}
	st, err := store.Open(ctx, e.cfg.DataDir, store.Options{
		Logger:           e.logger,
		SnapshotEvery:    e.cfg.SnapshotEvery,
		SnapshotInterval: e.cfg.SnapshotInterval,
		SubscriberBuffer: e.cfg.SubscriberBuffer,
		DisableIndex:     e.cfg.DisableIndex,
	})
	if err != nil {
		return nil, err
	}
	e.st = st
	return st, nil
}

// Run executes one CLI invocation and returns the process exit code.
// env carries the process environment as a key/value map.
func Run(out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	cio := &IO{Out: out, Err: errOut}

	global := newFlagSet("specdeck")
	var (
		dataDir    string
		configPath string
		logLevel   string
	)
	global.StringVar(&dataDir, "data-dir", "", "data directory (overrides config)")
	global.StringVar(&configPath, "config", "", "path to config file")
	global.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	global.SetInterspersed(false)

	if err := global.Parse(args); err != nil {
		fmt.Fprintf(cio.Err, "specdeck: %v\n", err)
		return exitUsage
	}
	rest := global.Args()

	if len(rest) == 0 || rest[0] == "help" || rest[0] == "--help" || rest[0] == "-h" {
		if len(rest) > 1 {
			if cmd := lookup(rest[1:]); cmd != nil {
				cmd.printHelp(cio.Out)
				return exitOK
			}
		}
		printUsage(cio.Out)
		return exitOK
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(cio.Err, "specdeck: %v\n", err)
		return exitError
	}
	cfg, err := config.Load(wd, configPath, env)
	if err != nil {
		fmt.Fprintf(cio.Err, "specdeck: %v\n", err)
		return exitError
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := newLogger(cio.Err, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(cio.Err, "specdeck: %v\n", err)
		return exitUsage
	}

	cmd := lookup(rest)
	if cmd == nil {
		fmt.Fprintf(cio.Err, "specdeck: unknown command %q\n\n", strings.Join(rest, " "))
		printUsage(cio.Err)
		return exitUsage
	}
	cmdArgs := rest[len(strings.Fields(cmd.Name())):]

	if err := cmd.Flags.Parse(cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			cmd.printHelp(cio.Out)
			return exitOK
		}
		fmt.Fprintf(cio.Err, "specdeck %s: %v\n", cmd.Name(), err)
		return exitUsage
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if sig != nil {
		go func() {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	cenv := &cmdEnv{io: cio, cfg: cfg, logger: logger}
	runErr := cmd.Exec(ctx, cenv, cmd.Flags.Args())
	if cenv.st != nil {
		if cerr := cenv.st.Close(); cerr != nil && runErr == nil {
			runErr = cerr
		}
	}
	if runErr == nil {
		return exitOK
	}

	var uerr *usageError
	switch {
	case errors.As(runErr, &uerr):
		fmt.Fprintf(cio.Err, "specdeck %s: %s\n\n", uerr.cmd.Name(), uerr.msg)
		uerr.cmd.printHelp(cio.Err)
		return exitUsage
	case errors.Is(runErr, store.ErrVersionConflict):
		fmt.Fprintf(cio.Err, "specdeck: %v\n", runErr)
		return exitConflict
	case errors.Is(runErr, store.ErrSpecNotFound):
		fmt.Fprintf(cio.Err, "specdeck: %v\n", runErr)
		return exitNotFound
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(cio.Err, "specdeck: interrupted")
		return exitError
	default:
		fmt.Fprintf(cio.Err, "specdeck: %v\n", runErr)
		return exitError
	}
}

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	if level == "" {
		level = "warn"
	}
	if level == "off" {
		return zerolog.Nop(), nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q", level)
	}
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger(), nil
}

// commands returns the full command table. Built per call so tests can
// run invocations in parallel without shared FlagSet state.
func commands() []*Command {
	return []*Command{
		cmdCreate(),
		cmdRename(),
		cmdSpecs(),
		cmdShow(),
		cmdCardAdd(),
		cmdCardRetitle(),
		cmdCardStatus(),
		cmdCardSet(),
		cmdCardUnset(),
		cmdCardMove(),
		cmdCardRemove(),
		cmdCards(),
		cmdExport(),
		cmdWatch(),
		cmdSnapshot(),
		cmdCompact(),
		cmdReindex(),
	}
}

// lookup matches the longest command name prefix of args.
func lookup(args []string) *Command {
	var best *Command
	bestLen := 0
	for _, c := range commands() {
		fields := strings.Fields(c.Name())
		if len(fields) > len(args) || len(fields) <= bestLen {
			continue
		}
		match := true
		for i, f := range fields {
			if args[i] != f {
				match = false
				break
			}
		}
		if match {
			best = c
			bestLen = len(fields)
		}
	}
	return best
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, "Usage: specdeck [global flags] <command> [args]\n\nCommands:\n")
	cmds := commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	width := 0
	for _, c := range cmds {
		if n := len(c.Name()); n > width {
			width = n
		}
	}
	for _, c := range cmds {
		fmt.Fprintf(w, "  %-*s  %s\n", width, c.Name(), c.Short)
	}
	fmt.Fprint(w, "\nGlobal flags:\n  --data-dir    data directory\n  --config      config file path\n  --log-level   debug, info, warn, error, off\n\nRun \"specdeck help <command>\" for details.\n")
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/roach88/tablehook/internal/engine"
	"github.com/roach88/tablehook/internal/logging"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/store"
)

// NewShellCommand creates the shell command. The root command runs the
// same shell when invoked without a subcommand.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open the interactive shell",
		Long: `Open the interactive shell.

All recipes in the recipes directory are loaded (not started) on entry.
Type "help" for the list of commands.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(rootOpts, cmd)
		},
	}
}

func runShell(opts *RootOptions, cmd *cobra.Command) error {
	a, err := newApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "tablehook> ",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      shellCompleter(),
		Stdin:             io.NopCloser(cmd.InOrStdin()),
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		a.shutdown()
		return WrapExitError(ExitCommandError, "failed to initialize readline", err)
	}
	defer rl.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		app: a,
		out: cmd.OutOrStdout(),
		prompter: &linePrompter{
			out: cmd.OutOrStdout(),
			readLine: func(prompt string) (string, error) {
				rl.SetPrompt(prompt)
				defer rl.SetPrompt("tablehook> ")
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return "", ErrCancelled
				}
				return line, err
			},
		},
		ctx: ctx,
	}
	s.Start()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if s.Execute(line) {
			break
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Stopping recipes...")
	return a.shutdown()
}

func shellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, c := range shellCommands {
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}

var shellCommands = []struct {
	name, usage, help string
}{
	{"create", "create", "Create a new recipe"},
	{"start", "start", "Start all recipes"},
	{"load", "load <name>", "Load a recipe by name (file name without extension) and start it"},
	{"status", "status", "View status of all recipes"},
	{"logs", "logs", "View the logs"},
	{"history", "history [name]", "View recent webhook deliveries"},
	{"help", "help", "Show this menu"},
	{"exit", "exit", "Stop all recipes and exit"},
}

// Session executes shell commands against a wired app.
type Session struct {
	app      *app
	out      io.Writer
	prompter Prompter

	// ctx parents every runner the session starts.
	ctx context.Context
}

// Start loads every recipe in the recipes directory and prints the menu.
func (s *Session) Start() {
	loaded, errs := s.app.loadAll()
	for _, err := range errs {
		fmt.Fprintf(s.out, "Skipped: %v\n", err)
	}
	fmt.Fprintf(s.out, "Loaded %d recipe(s) from %s\n", loaded, s.app.cfg.RecipesDir)
	s.menu()
}

// Execute runs one command line and reports whether the shell should exit.
// A failing command prints its error and the menu; it never ends the shell.
func (s *Session) Execute(line string) (exit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	command, args := fields[0], fields[1:]

	var err error
	switch command {
	case "create":
		err = s.create()
	case "start":
		s.startAll()
	case "load":
		err = s.load(args)
	case "status":
		err = writeStatus(s.out, "text", s.app.manager.Status())
	case "logs":
		err = s.logs()
	case "history":
		err = s.history(args)
	case "help":
		s.menu()
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command %q. Please try again.\n", command)
		s.menu()
		return false
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		s.menu()
	}
	return false
}

func (s *Session) menu() {
	fmt.Fprintln(s.out, "Available commands:")
	for _, c := range shellCommands {
		fmt.Fprintf(s.out, "  %-15s %s\n", c.usage, c.help)
	}
}

func (s *Session) create() error {
	r, err := BuildRecipe(s.prompter)
	if err != nil {
		return err
	}
	if _, ok := s.app.manager.Runner(r.Name); ok {
		return fmt.Errorf("%w: %s", engine.ErrDuplicateRecipe, r.Name)
	}
	path, err := recipe.Save(s.app.cfg.RecipesDir, r)
	if err != nil {
		return err
	}
	s.app.logger.Info().Str("path", path).Msg("recipe saved")
	if _, err := s.app.manager.Register(r); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Recipe '%s' created.\n", r.Name)
	return nil
}

func (s *Session) startAll() {
	results := s.app.manager.StartAll(s.ctx)
	if len(results) == 0 {
		fmt.Fprintln(s.out, "No recipes loaded.")
		return
	}
	for _, res := range results {
		switch {
		case res.Started():
			fmt.Fprintf(s.out, "Recipe '%s' started.\n", res.Name)
		case errors.Is(res.Err, engine.ErrAlreadyRunning):
			fmt.Fprintf(s.out, "Recipe '%s' is already running.\n", res.Name)
		default:
			fmt.Fprintf(s.out, "Recipe '%s' not started: %v\n", res.Name, res.Err)
		}
	}
	s.app.logger.Info().Msg("all recipes started")
}

func (s *Session) load(args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		var err error
		if name, err = s.prompter.Ask("Enter the name of the recipe (without extension)", validateName); err != nil {
			return err
		}
	}

	runner, err := s.app.loadOne(name)
	if err != nil {
		return err
	}
	if err := runner.Start(s.ctx); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			fmt.Fprintf(s.out, "Recipe '%s' is already running.\n", runner.Name())
			return nil
		}
		return err
	}
	fmt.Fprintf(s.out, "Recipe '%s' started.\n", runner.Name())
	return nil
}

func (s *Session) logs() error {
	n, err := logging.Replay(s.app.cfg.Log.File, s.out)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && n == 0) {
		fmt.Fprintln(s.out, "No logs found.")
		return nil
	}
	return err
}

func (s *Session) history(args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	deliveries, err := s.app.journal.RecentDeliveries(s.ctx, name, store.DefaultHistoryLimit)
	if err != nil {
		return err
	}
	return writeHistory(s.out, "text", deliveries)
}

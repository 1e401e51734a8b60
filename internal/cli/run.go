package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tablehook/internal/logging"
	"github.com/roach88/tablehook/internal/server"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// Listen overrides server.listen. Empty keeps the configured address;
	// "off" disables the admin API.
	Listen string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every recipe headless",
		Long: `Load and start every recipe in the recipes directory, serve the
admin API and run until interrupted.

On SIGINT or SIGTERM every runner finishes its current step and stops.

Example:
  tablehook run
  tablehook run --config ./prod.toml --listen :9090 -vv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", `admin API address (overrides server.listen, "off" disables it)`)

	return cmd
}

func runHeadless(opts *RunOptions, cmd *cobra.Command) error {
	a, err := newApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	loaded, errs := a.loadAll()
	if loaded == 0 {
		a.shutdown()
		if len(errs) > 0 {
			return WrapExitError(ExitFailure, "no recipe could be loaded", errs[0])
		}
		return NewExitError(ExitFailure, fmt.Sprintf("no recipes found in %s", a.cfg.RecipesDir))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, res := range a.manager.StartAll(ctx) {
		if !res.Started() {
			a.logger.Warn().Err(res.Err).Str("recipe", res.Name).Msg("recipe not started")
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Running %d recipe(s). Press Ctrl-C to stop.\n", loaded)

	listen := a.cfg.Server.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	g, gctx := errgroup.WithContext(ctx)
	if listen != "off" && listen != "" {
		api := server.New(a.manager,
			server.WithGatherer(a.registry),
			server.WithLogger(logging.Component(a.logger, "server")),
			server.WithRunContext(ctx),
		)
		g.Go(func() error {
			return api.Serve(gctx, listen)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down")
		return nil
	})

	runErr := g.Wait()
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

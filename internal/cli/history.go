package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/tablehook/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Cycles bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [recipe]",
		Short: "Show recent webhook deliveries from the journal",
		Long: `Show the newest webhook deliveries recorded in the journal,
optionally for a single recipe.

Use --cycles to list polling cycles instead.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runHistory(opts, name, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", store.DefaultHistoryLimit, "maximum number of entries")
	cmd.Flags().BoolVar(&opts.Cycles, "cycles", false, "list polling cycles instead of deliveries")

	return cmd
}

func runHistory(opts *HistoryOptions, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Report(err)
	}

	journal, err := store.Open(cfg.StateDB)
	if err != nil {
		return formatter.Report(WrapExitError(ExitCommandError, "failed to open journal", err))
	}
	defer journal.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Cycles {
		cycles, err := journal.RecentCycles(ctx, name, opts.Limit)
		if err != nil {
			return formatter.Report(WrapExitError(ExitCommandError, "failed to read journal", err))
		}
		return writeCycles(cmd.OutOrStdout(), opts.Format, cycles)
	}

	deliveries, err := journal.RecentDeliveries(ctx, name, opts.Limit)
	if err != nil {
		return formatter.Report(WrapExitError(ExitCommandError, "failed to read journal", err))
	}
	return writeHistory(cmd.OutOrStdout(), opts.Format, deliveries)
}

package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/tablehook/internal/logging"
)

// LogsOptions holds flags for the logs command.
type LogsOptions struct {
	*RootOptions
	File string
}

// NewLogsCommand creates the logs command.
func NewLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file",
		Long: `Print the log file in a readable form.

The file defaults to log.file from the configuration.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "log file to print (overrides log.file)")

	return cmd
}

func runLogs(opts *LogsOptions, cmd *cobra.Command) error {
	path := opts.File
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Report(err)
		}
		path = cfg.Log.File
	}

	n, err := logging.Replay(path, cmd.OutOrStdout())
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && n == 0):
		fmt.Fprintln(cmd.OutOrStdout(), "No logs found.")
		return nil
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read log file", err)
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tablehook/internal/recipe"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions

	// Dir overrides recipes_dir.
	Dir string

	// Force replaces an existing recipe file of the same name.
	Force bool

	// Prompter allows overriding the interactive prompts (for testing).
	// If nil, promptui prompts on the command's stdin and stdout.
	Prompter Prompter
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Interactively build and save a recipe",
		Long: `Walk through defining a recipe and save it as <name>.json in the
recipes directory. The recipe is not started. An existing recipe of the
same name is kept unless --force is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory to save the recipe in (overrides recipes_dir)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace an existing recipe of the same name")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose > 0,
	}

	dir := opts.Dir
	if dir == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return formatter.Report(err)
		}
		dir = cfg.RecipesDir
	}

	p := opts.Prompter
	if p == nil {
		p = newPromptuiPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	r, err := BuildRecipe(p)
	if err != nil {
		return formatter.Fail(ExitFailure, "recipe not created", err)
	}

	save := recipe.Save
	if opts.Force {
		save = recipe.Overwrite
	}
	path, err := save(dir, r)
	switch {
	case errors.Is(err, recipe.ErrExists):
		return formatter.Fail(ExitFailure, "recipe not created", err)
	case err != nil:
		return formatter.Fail(ExitCommandError, "failed to save recipe", err)
	}
	formatter.VerboseLog("Saved %s", path)

	return formatter.Render(map[string]string{"name": r.Name, "path": path}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Recipe '%s' saved to %s\n", r.Name, path)
		return err
	})
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tablehook/internal/recipe"
)

// FileResult is the validation outcome of one recipe file.
type FileResult struct {
	Path   string            `json:"path"`
	Recipe string            `json:"recipe,omitempty"`
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one problem found in a recipe file.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <recipe-file>...",
		Short: "Validate recipe files without running them",
		Long: `Check recipe files against the recipe schema and the recipe rules
(known trigger, at least one action, known operators, ...).

JSON and YAML files are accepted. Exit status is 1 when any file is invalid.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose > 0,
	}

	result := ValidationResult{Valid: true}
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		fr := validateFile(path)
		if !fr.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fr)
	}

	if formatter.Format == "json" {
		return outputValidationJSON(formatter, result)
	}
	return outputValidationText(formatter, result)
}

// validateFile collects every problem in one recipe file.
func validateFile(path string) FileResult {
	fr := FileResult{Path: path}

	r, errs := recipe.ValidateFile(path)
	if len(errs) == 0 {
		fr.Recipe = r.Name
		fr.Valid = true
		return fr
	}
	for _, ce := range errs {
		if fr.Recipe == "" {
			fr.Recipe = ce.Recipe
		}
		msg := ce.Message
		if ce.Err != nil {
			msg = fmt.Sprintf("%s: %v", ce.Message, ce.Err)
		}
		fr.Errors = append(fr.Errors, ValidationIssue{Field: ce.Field, Message: msg})
	}
	return fr
}

func outputValidationJSON(formatter *OutputFormatter, result ValidationResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.Valid {
		first := firstIssue(result)
		response.Status = "error"
		response.Error = &CLIError{Code: ErrCodeRecipe, Message: first.Message}
	}

	if err := formatter.encode(response); err != nil {
		return err
	}
	if !result.Valid {
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", invalidCount(result)))
	}
	return nil
}

func outputValidationText(formatter *OutputFormatter, result ValidationResult) error {
	for _, fr := range result.Files {
		if fr.Valid {
			fmt.Fprintf(formatter.Writer, "✓ %s (%s)\n", fr.Path, fr.Recipe)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✗ %s\n", fr.Path)
		for _, issue := range fr.Errors {
			if issue.Field != "" {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Field, issue.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "  %s\n", issue.Message)
			}
		}
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", invalidCount(result)))
	}
	return nil
}

func firstIssue(result ValidationResult) ValidationIssue {
	for _, fr := range result.Files {
		if len(fr.Errors) > 0 {
			return fr.Errors[0]
		}
	}
	return ValidationIssue{}
}

func invalidCount(result ValidationResult) int {
	n := 0
	for _, fr := range result.Files {
		if !fr.Valid {
			n++
		}
	}
	return n
}

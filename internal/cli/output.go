package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tablehook/internal/config"
	"github.com/roach88/tablehook/internal/engine"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation failure, recipe that failed to start, etc.
	ExitCommandError = 2 // Command error (bad config, unreadable journal, etc.)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric  = "E001"
	ErrCodeConfig   = "E002"
	ErrCodeRecipe   = "E003"
	ErrCodeJournal  = "E004"
	ErrCodeNotFound = "E005"
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code    int // ExitFailure or ExitCommandError
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps a domain error to the code reported in CLIError.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ErrCodeGeneric
	case errors.Is(err, config.ErrInvalid):
		return ErrCodeConfig
	case errors.Is(err, store.ErrJournal):
		return ErrCodeJournal
	case errors.Is(err, recipe.ErrNotFound), errors.Is(err, engine.ErrUnknownRecipe):
		return ErrCodeNotFound
	case recipe.IsConfigurationError(err), errors.Is(err, recipe.ErrExists):
		return ErrCodeRecipe
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter writes command results as text or as a JSON CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success writes data. Text output prints data with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Render writes data as JSON, or calls text to lay it out for humans.
func (f *OutputFormatter) Render(data any, text func(io.Writer) error) error {
	if f.isJSON() {
		return f.Success(data)
	}
	return text(f.Writer)
}

// Error writes an error. Details are shown in text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under the code ErrorCode picks and returns the ExitError
// the command should return.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) *ExitError {
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return WrapExitError(exitCode, message, err)
}

// Report writes err under the code ErrorCode picks and returns it unchanged.
func (f *OutputFormatter) Report(err error) error {
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return err
}

// VerboseLog writes a diagnostic line when verbose is set. It goes to
// ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

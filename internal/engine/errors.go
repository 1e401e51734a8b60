package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/tablehook/internal/recipe"
)

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeFetch indicates the record source could not be read.
	ErrCodeFetch ErrorCode = "FETCH_FAILED"

	// ErrCodeExecution indicates an action's side effect failed.
	ErrCodeExecution ErrorCode = "EXECUTION_FAILED"
)

var (
	// ErrAlreadyRunning is returned when starting a runner that is running.
	ErrAlreadyRunning = errors.New("recipe is already running")

	// ErrStopped is returned when starting a runner that has stopped.
	// A stopped runner is never restarted.
	ErrStopped = errors.New("recipe runner has stopped")

	// ErrUnknownRecipe is returned for a name that was never registered.
	ErrUnknownRecipe = errors.New("unknown recipe")

	// ErrDuplicateRecipe is returned when registering a name twice.
	ErrDuplicateRecipe = errors.New("recipe already registered")
)

// FetchError reports that the record source was unreachable or returned a
// malformed response. It abandons the current cycle only.
type FetchError struct {
	Recipe string
	Err    error
}

// Code returns ErrCodeFetch.
func (e *FetchError) Code() ErrorCode { return ErrCodeFetch }

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch records (recipe=%s): %v", ErrCodeFetch, e.Recipe, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExecutionError reports a failed action side effect. The action's output
// is not recorded; the rest of the cycle continues.
type ExecutionError struct {
	Recipe      string
	RecordID    string
	ActionType  recipe.ActionKind
	ActionIndex int
	Err         error
}

// Code returns ErrCodeExecution.
func (e *ExecutionError) Code() ErrorCode { return ErrCodeExecution }

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s#%d (recipe=%s, record=%s): %v",
		ErrCodeExecution, e.ActionType, e.ActionIndex, e.Recipe, e.RecordID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsFetchError returns true if the error is a FetchError.
// Uses errors.As to handle wrapped errors.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsExecutionError returns true if the error is an ExecutionError.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

func errUnknownAction(kind recipe.ActionKind) error {
	return fmt.Errorf("unknown action type %q", kind)
}

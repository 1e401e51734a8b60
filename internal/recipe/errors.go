package recipe

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed or incomplete recipe definition.
// A recipe that fails with it is never registered.
type ConfigurationError struct {
	// Recipe is the recipe name when known.
	Recipe string

	// Path is the file the definition came from, if any.
	Path string

	// Field is the offending field, e.g. "actions[0].webhook_url".
	Field string

	Message string

	Err error
}

func (e *ConfigurationError) Error() string {
	where := e.Path
	if where == "" {
		where = e.Recipe
	}
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if where != "" {
		return fmt.Sprintf("invalid recipe %s: %s", where, msg)
	}
	return "invalid recipe: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func newConfigError(name, field, message string) *ConfigurationError {
	return &ConfigurationError{Recipe: name, Field: field, Message: message}
}

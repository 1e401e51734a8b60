// Package filter evaluates field-level conditions against records.
//
// Evaluation is pure: it reads the record and never changes it. Conditions
// are ANDed and evaluation stops at the first condition that fails.
//
// A condition whose field is absent, null, the empty string or an empty
// list or object cannot disqualify a record. This permissive default is part
// of the contract and is pinned by tests; strict rejection is not applied.
// Zero and false are values and are compared like any other.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
)

// EvaluationError reports a condition that could not be evaluated, such as a
// greater_than comparison on a non-numeric value. Callers treat it as a
// non-match for the chain being evaluated.
type EvaluationError struct {
	RecordID string
	Field    string
	Operator recipe.Operator
	Value    string
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("filter %s %s %q on record %s: %v", e.Field, e.Operator, e.Value, e.RecordID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// IsEvaluationError reports whether err wraps an EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

// Matches reports whether rec satisfies every condition. An empty condition
// list always matches.
func Matches(rec record.Record, conditions []recipe.FilterCondition) (bool, error) {
	for _, c := range conditions {
		ok, err := evaluate(rec, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// MatchesField reports whether the stringified field contains text. An
// absent field reads as the empty string, so it only matches empty text.
func MatchesField(rec record.Record, field, text string) bool {
	return strings.Contains(rec.FieldString(field), text)
}

func evaluate(rec record.Record, c recipe.FilterCondition) (bool, error) {
	if isEmpty(rec, c.FieldName) {
		return true, nil
	}
	actual := rec.FieldString(c.FieldName)

	switch c.Operator {
	case recipe.OpEquals:
		return actual == c.Value, nil
	case recipe.OpContains:
		return strings.Contains(actual, c.Value), nil
	case recipe.OpGreaterThan:
		left, err := parseNumber(actual)
		if err != nil {
			return false, evalError(rec, c, err)
		}
		right, err := parseNumber(c.Value)
		if err != nil {
			return false, evalError(rec, c, err)
		}
		return left > right, nil
	default:
		return false, evalError(rec, c, fmt.Errorf("unknown operator %q", c.Operator))
	}
}

func isEmpty(rec record.Record, field string) bool {
	v, ok := rec.Field(field)
	if !ok {
		return true
	}
	switch val := v.(type) {
	case nil:
		return true
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return record.Stringify(v) == ""
	}
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func evalError(rec record.Record, c recipe.FilterCondition, err error) *EvaluationError {
	return &EvaluationError{
		RecordID: rec.ID,
		Field:    c.FieldName,
		Operator: c.Operator,
		Value:    c.Value,
		Err:      err,
	}
}

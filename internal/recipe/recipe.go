// Package recipe defines the unit of automation configuration: one trigger,
// top-level filters and an ordered chain of actions, together with the
// persisted definition format and its validation.
package recipe

import (
	"fmt"
	"strings"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
)

// Operators lists every supported operator in prompt order.
var Operators = []Operator{OpEquals, OpContains, OpGreaterThan}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpContains, OpGreaterThan:
		return true
	}
	return false
}

// FilterCondition is a single field-level predicate.
type FilterCondition struct {
	FieldName string
	Operator  Operator
	Value     string
}

// TriggerKind enumerates trigger variants.
type TriggerKind string

const (
	TriggerRecordChanged TriggerKind = "record_changed"
	TriggerFindRecord    TriggerKind = "find_record"

	// legacyRecordChanged is the spelling used by older recipe files.
	legacyRecordChanged = "airtable_record_updated"
)

// TriggerKinds lists the variants with their descriptions, in prompt order.
var TriggerKinds = []struct {
	Kind        TriggerKind
	Description string
}{
	{TriggerRecordChanged, "Triggered when a record is created or updated"},
	{TriggerFindRecord, "Find a record based on specified text in a field"},
}

// Trigger is a tagged variant: RecordChanged, or FindRecord with the field
// to search and the text to look for.
type Trigger struct {
	Kind       TriggerKind
	FieldName  string
	TextToFind string
}

// RecordChanged builds a record_changed trigger.
func RecordChanged() Trigger { return Trigger{Kind: TriggerRecordChanged} }

// FindRecord builds a find_record trigger.
func FindRecord(field, text string) Trigger {
	return Trigger{Kind: TriggerFindRecord, FieldName: field, TextToFind: text}
}

// ActionKind enumerates action variants.
type ActionKind string

const (
	ActionSendWebhook ActionKind = "send_webhook"
)

// ActionKinds lists the variants with their descriptions, in prompt order.
var ActionKinds = []struct {
	Kind        ActionKind
	Description string
}{
	{ActionSendWebhook, "Sends a webhook to a specified URL"},
}

// Action is one step of a recipe's chain.
type Action struct {
	Kind ActionKind

	// WebhookURL is set for ActionSendWebhook.
	WebhookURL string

	Filters []FilterCondition

	// OutputName stores the action's result in the cycle's output map.
	OutputName string

	// InputFrom, when non-empty, replaces the record payload with the named
	// outputs of earlier actions.
	InputFrom []string
}

// SendWebhook builds a send_webhook action.
func SendWebhook(url string) Action {
	return Action{Kind: ActionSendWebhook, WebhookURL: url}
}

// Label identifies the action in logs, e.g. "send_webhook#1".
func (a Action) Label(index int) string {
	return fmt.Sprintf("%s#%d", a.Kind, index)
}

// SourceConfig locates the watched table.
type SourceConfig struct {
	BaseKey   string
	TableName string
	APIKey    string
}

// Recipe is the immutable configuration of one automation. Runtime state
// (snapshot, last poll time, running flag) is owned by the engine's runner.
type Recipe struct {
	Name    string
	Trigger Trigger
	Filters []FilterCondition
	Actions []Action
	Source  SourceConfig
}

// Validate checks the invariants a recipe must hold before it can run.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return newConfigError("", "name", "name is required")
	}
	if strings.ContainsAny(r.Name, `/\`) || r.Name == "." || r.Name == ".." {
		return newConfigError(r.Name, "name", "name must be usable as a file name")
	}
	switch r.Trigger.Kind {
	case TriggerRecordChanged:
	case TriggerFindRecord:
		if r.Trigger.FieldName == "" {
			return newConfigError(r.Name, "field_name", "find_record trigger requires field_name")
		}
	default:
		return newConfigError(r.Name, "trigger", fmt.Sprintf("unknown trigger %q", r.Trigger.Kind))
	}
	if err := validateFilters(r.Name, "filters", r.Filters); err != nil {
		return err
	}
	if len(r.Actions) == 0 {
		return newConfigError(r.Name, "actions", "at least one action is required")
	}
	for i, a := range r.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		switch a.Kind {
		case ActionSendWebhook:
			if a.WebhookURL == "" {
				return newConfigError(r.Name, field+".webhook_url", "send_webhook requires webhook_url")
			}
		default:
			return newConfigError(r.Name, field+".type", fmt.Sprintf("unknown action type %q", a.Kind))
		}
		if err := validateFilters(r.Name, field+".filters", a.Filters); err != nil {
			return err
		}
	}
	return nil
}

func validateFilters(name, field string, filters []FilterCondition) error {
	for i, f := range filters {
		if f.FieldName == "" {
			return newConfigError(name, fmt.Sprintf("%s[%d].field_name", field, i), "field_name is required")
		}
		if !f.Operator.Valid() {
			return newConfigError(name, fmt.Sprintf("%s[%d].operator", field, i), fmt.Sprintf("unknown operator %q", f.Operator))
		}
	}
	return nil
}

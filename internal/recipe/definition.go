package recipe

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Definition is the persisted form of a recipe. Field names follow the
// on-disk format; runtime state is never part of it.
type Definition struct {
	Name       string             `json:"name" yaml:"name"`
	Trigger    string             `json:"trigger" yaml:"trigger"`
	Actions    []ActionDefinition `json:"actions" yaml:"actions"`
	BaseKey    string             `json:"base_key" yaml:"base_key"`
	TableName  string             `json:"table_name" yaml:"table_name"`
	APIKey     string             `json:"api_key" yaml:"api_key"`
	FieldName  string             `json:"field_name,omitempty" yaml:"field_name,omitempty"`
	TextToFind string             `json:"text_to_find,omitempty" yaml:"text_to_find,omitempty"`
	Filters    []FilterDefinition `json:"filters" yaml:"filters"`
}

// ActionDefinition is the persisted form of an Action.
type ActionDefinition struct {
	Type       string             `json:"type" yaml:"type"`
	WebhookURL string             `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	Filters    []FilterDefinition `json:"filters" yaml:"filters"`
	OutputName string             `json:"output_name,omitempty" yaml:"output_name,omitempty"`
	InputFrom  []string           `json:"input_from,omitempty" yaml:"input_from,omitempty"`
}

// FilterDefinition is the persisted form of a FilterCondition.
type FilterDefinition struct {
	FieldName string      `json:"field_name" yaml:"field_name"`
	Operator  string      `json:"operator" yaml:"operator"`
	Value     ScalarValue `json:"value" yaml:"value"`
}

// ScalarValue is a filter value. Files may write it as a string or a number;
// it is always held as a string.
type ScalarValue string

// UnmarshalJSON accepts strings, numbers and bools.
func (v *ScalarValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ScalarValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = ScalarValue(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = ScalarValue(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("filter value must be a string or number, got %s", string(data))
}

// UnmarshalYAML accepts any scalar node.
func (v *ScalarValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("filter value must be a scalar (line %d)", node.Line)
	}
	*v = ScalarValue(node.Value)
	return nil
}

// ToDefinition converts a recipe into its persisted form.
func (r *Recipe) ToDefinition() Definition {
	def := Definition{
		Name:      r.Name,
		Trigger:   string(r.Trigger.Kind),
		Actions:   make([]ActionDefinition, 0, len(r.Actions)),
		BaseKey:   r.Source.BaseKey,
		TableName: r.Source.TableName,
		APIKey:    r.Source.APIKey,
		Filters:   filtersToDefinition(r.Filters),
	}
	if r.Trigger.Kind == TriggerFindRecord {
		def.FieldName = r.Trigger.FieldName
		def.TextToFind = r.Trigger.TextToFind
	}
	for _, a := range r.Actions {
		def.Actions = append(def.Actions, ActionDefinition{
			Type:       string(a.Kind),
			WebhookURL: a.WebhookURL,
			Filters:    filtersToDefinition(a.Filters),
			OutputName: a.OutputName,
			InputFrom:  append([]string(nil), a.InputFrom...),
		})
	}
	return def
}

// Recipe converts a definition into a validated Recipe.
func (d Definition) Recipe() (*Recipe, error) {
	r := &Recipe{
		Name:    d.Name,
		Filters: filtersFromDefinition(d.Filters),
		Source: SourceConfig{
			BaseKey:   d.BaseKey,
			TableName: d.TableName,
			APIKey:    d.APIKey,
		},
	}

	switch d.Trigger {
	case string(TriggerRecordChanged), legacyRecordChanged:
		r.Trigger = RecordChanged()
	case string(TriggerFindRecord):
		r.Trigger = FindRecord(d.FieldName, d.TextToFind)
	default:
		return nil, newConfigError(d.Name, "trigger", fmt.Sprintf("unknown trigger %q", d.Trigger))
	}

	for _, ad := range d.Actions {
		a := Action{
			Kind:       ActionKind(ad.Type),
			WebhookURL: ad.WebhookURL,
			Filters:    filtersFromDefinition(ad.Filters),
			OutputName: ad.OutputName,
		}
		if len(ad.InputFrom) > 0 {
			a.InputFrom = append([]string(nil), ad.InputFrom...)
		}
		r.Actions = append(r.Actions, a)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func filtersToDefinition(filters []FilterCondition) []FilterDefinition {
	out := make([]FilterDefinition, 0, len(filters))
	for _, f := range filters {
		out = append(out, FilterDefinition{
			FieldName: f.FieldName,
			Operator:  string(f.Operator),
			Value:     ScalarValue(f.Value),
		})
	}
	return out
}

func filtersFromDefinition(defs []FilterDefinition) []FilterCondition {
	if len(defs) == 0 {
		return nil
	}
	out := make([]FilterCondition, 0, len(defs))
	for _, d := range defs {
		out = append(out, FilterCondition{
			FieldName: d.FieldName,
			Operator:  Operator(d.Operator),
			Value:     string(d.Value),
		})
	}
	return out
}

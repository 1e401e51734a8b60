package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tablehook/internal/recipe"
)

// Scenario is one scripted run of a recipe.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// PollInterval and FreshWindow configure the engine. Zero keeps the
	// engine defaults.
	PollInterval time.Duration  `yaml:"poll_interval,omitempty"`
	FreshWindow  *time.Duration `yaml:"fresh_window,omitempty"`

	// Recipe is the recipe document under test.
	Recipe yaml.Node `yaml:"recipe"`

	// Responses maps webhook URLs to the JSON result they answer with.
	// Unlisted URLs answer null.
	Responses map[string]any `yaml:"responses,omitempty"`

	// Polls scripts the table, one entry per fetch.
	Polls []Poll `yaml:"polls"`

	Assertions []Assertion `yaml:"assertions"`

	recipe *recipe.Recipe
}

// Poll is what one fetch returns.
type Poll struct {
	// Records is the full table content at this poll.
	Records []RecordStep `yaml:"records"`

	// Error makes the fetch fail with this message.
	Error string `yaml:"error,omitempty"`

	// Fail lists webhook URLs that fail for the duration of this poll.
	Fail []string `yaml:"fail,omitempty"`
}

// RecordStep is one table row.
type RecordStep struct {
	ID string `yaml:"id"`

	// Modified is the last-modified time as an offset from the scenario
	// start, e.g. "-1m" or "25s".
	Modified time.Duration `yaml:"modified"`

	Fields map[string]any `yaml:"fields,omitempty"`
}

// Assertion checks the trace or the journal after the run.
type Assertion struct {
	Type string `yaml:"type"`

	URL    string `yaml:"url,omitempty"`
	Record string `yaml:"record,omitempty"`
	Poll   *int   `yaml:"poll,omitempty"`

	// Outcome narrows delivery_count and journal to "delivered" or
	// "failed".
	Outcome string `yaml:"outcome,omitempty"`

	// Count is used by delivery_count and journal.
	Count int `yaml:"count,omitempty"`

	// Records is the expected order for delivery_order.
	Records []string `yaml:"records,omitempty"`

	// Table is "deliveries" or "cycles" for journal assertions.
	Table string `yaml:"table,omitempty"`
}

// Assertion types.
const (
	AssertDelivered     = "delivered"
	AssertNotDelivered  = "not_delivered"
	AssertDeliveryCount = "delivery_count"
	AssertDeliveryOrder = "delivery_order"
	AssertJournal       = "journal"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// RecipeUnderTest returns the parsed recipe.
func (s *Scenario) RecipeUnderTest() *recipe.Recipe { return s.recipe }

func (s *Scenario) validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Recipe.Kind == 0 {
		return errors.New("recipe is required")
	}
	doc, err := yaml.Marshal(&s.Recipe)
	if err != nil {
		return fmt.Errorf("recipe: %w", err)
	}
	if s.recipe, err = recipe.Parse(doc, ".yaml"); err != nil {
		return fmt.Errorf("recipe: %w", err)
	}

	if len(s.Polls) == 0 {
		return errors.New("at least one poll is required")
	}
	for i, p := range s.Polls {
		if p.Error != "" && len(p.Records) > 0 {
			return fmt.Errorf("polls[%d]: records and error are mutually exclusive", i)
		}
		seen := make(map[string]bool, len(p.Records))
		for j, r := range p.Records {
			if r.ID == "" {
				return fmt.Errorf("polls[%d].records[%d]: id is required", i, j)
			}
			if seen[r.ID] {
				return fmt.Errorf("polls[%d].records[%d]: duplicate id %q", i, j, r.ID)
			}
			seen[r.ID] = true
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Polls)); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, polls int) error {
	if a.Poll != nil && (*a.Poll < 0 || *a.Poll >= polls) {
		return fmt.Errorf("assertions[%d]: poll %d out of range", index, *a.Poll)
	}
	if a.Outcome != "" && a.Outcome != outcomeDelivered && a.Outcome != outcomeFailed {
		return fmt.Errorf("assertions[%d]: unknown outcome %q", index, a.Outcome)
	}
	switch a.Type {
	case AssertDelivered, AssertNotDelivered:
		if a.URL == "" && a.Record == "" {
			return fmt.Errorf("assertions[%d]: url or record is required for %s", index, a.Type)
		}
	case AssertDeliveryCount:
	case AssertDeliveryOrder:
		if a.URL == "" || len(a.Records) < 2 {
			return fmt.Errorf("assertions[%d]: url and at least two records are required for delivery_order", index)
		}
	case AssertJournal:
		if a.Table != "deliveries" && a.Table != "cycles" {
			return fmt.Errorf("assertions[%d]: table must be deliveries or cycles, got %q", index, a.Table)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecipe() *Recipe {
	notify := SendWebhook("https://hooks.example.com/notify")
	notify.InputFrom = []string{"enriched"}
	notify.Filters = []FilterCondition{{FieldName: "Owner", Operator: OpContains, Value: "ana"}}

	enrich := SendWebhook("https://hooks.example.com/enrich")
	enrich.OutputName = "enriched"

	return &Recipe{
		Name:    "new-leads",
		Trigger: FindRecord("Status", "new"),
		Filters: []FilterCondition{{FieldName: "Score", Operator: OpGreaterThan, Value: "10"}},
		Actions: []Action{enrich, notify},
		Source:  SourceConfig{BaseKey: "appXYZ", TableName: "Leads", APIKey: "keyABC"},
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestRecipe_Validate(t *testing.T) {
	require.NoError(t, sampleRecipe().Validate())
}

func TestRecipe_Validate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Recipe)
		field  string
	}{
		{"empty name", func(r *Recipe) { r.Name = "" }, "name"},
		{"path in name", func(r *Recipe) { r.Name = "../evil" }, "name"},
		{"find_record without field", func(r *Recipe) { r.Trigger = FindRecord("", "x") }, "field_name"},
		{"no actions", func(r *Recipe) { r.Actions = nil }, "actions"},
		{"webhook without url", func(r *Recipe) { r.Actions[0].WebhookURL = "" }, "actions[0].webhook_url"},
		{"unknown operator", func(r *Recipe) { r.Filters[0].Operator = "less_than" }, "filters[0].operator"},
		{"unknown action", func(r *Recipe) { r.Actions[1].Kind = "send_email" }, "actions[1].type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRecipe()
			tt.mutate(r)

			err := r.Validate()
			require.Error(t, err)

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

// =============================================================================
// Persisted format
// =============================================================================

func TestMarshal_Golden(t *testing.T) {
	data, err := Marshal(sampleRecipe())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "find_record_recipe", data)
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()

	path, err := Save(dir, sampleRecipe())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "new-leads.json"), path)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecipe(), loaded)
}

func TestSave_RefusesExistingName(t *testing.T) {
	dir := t.TempDir()
	path, err := Save(dir, sampleRecipe())
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	changed := sampleRecipe()
	changed.Actions[0].WebhookURL = "https://hooks.example.com/other"
	_, err = Save(dir, changed)
	require.ErrorIs(t, err, ErrExists)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing definition is untouched")
}

func TestSave_RefusesNameTakenByYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new-leads.yaml"), []byte("name: new-leads"), 0o600))

	_, err := Save(dir, sampleRecipe())
	require.ErrorIs(t, err, ErrExists)
	assert.NoFileExists(t, filepath.Join(dir, "new-leads.json"))
}

func TestOverwrite_ReplacesFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, sampleRecipe())
	require.NoError(t, err)

	changed := sampleRecipe()
	changed.Actions[0].WebhookURL = "https://hooks.example.com/other"
	path, err := Overwrite(dir, changed)
	require.NoError(t, err)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/other", loaded.Actions[0].WebhookURL)
}

func TestParse_LegacyFile(t *testing.T) {
	// Shape written by the first generation of the tool, runtime state included.
	data := []byte(`{
		"name": "legacy",
		"last_execution_time": null,
		"processed_records": {},
		"trigger": "airtable_record_updated",
		"actions": [{"type": "send_webhook", "filters": [], "webhook_url": "http://localhost:9000/hook"}],
		"base_key": "app1",
		"table_name": "tbl1",
		"api_key": "key1",
		"field_name": null,
		"text_to_find": null,
		"filters": [{"field_name": "Count", "operator": "greater_than", "value": 3}]
	}`)

	r, err := Parse(data, ".json")
	require.NoError(t, err)
	assert.Equal(t, RecordChanged(), r.Trigger)
	assert.Equal(t, "3", r.Filters[0].Value)
	assert.Empty(t, r.Actions[0].InputFrom)
	assert.Equal(t, "tbl1", r.Source.TableName)
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
name: yaml-recipe
trigger: find_record
field_name: Notes
text_to_find: urgent
base_key: app1
table_name: Tickets
api_key: key1
actions:
  - type: send_webhook
    webhook_url: https://hooks.example.com/a
    output_name: first
  - type: send_webhook
    webhook_url: https://hooks.example.com/b
    input_from: [first]
`)

	r, err := Parse(data, ".yaml")
	require.NoError(t, err)
	assert.Equal(t, FindRecord("Notes", "urgent"), r.Trigger)
	require.Len(t, r.Actions, 2)
	assert.Equal(t, []string{"first"}, r.Actions[1].InputFrom)
	assert.Nil(t, r.Filters)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "unknown operator",
			doc:   `{"name":"a","trigger":"record_changed","base_key":"","table_name":"","api_key":"","actions":[{"type":"send_webhook","webhook_url":"https://x"}],"filters":[{"field_name":"f","operator":"like","value":"v"}]}`,
			field: "operator",
		},
		{
			name:  "find_record without field_name",
			doc:   `{"name":"a","trigger":"find_record","base_key":"","table_name":"","api_key":"","actions":[{"type":"send_webhook","webhook_url":"https://x"}]}`,
			field: "field_name",
		},
		{
			name:  "non-http webhook",
			doc:   `{"name":"a","trigger":"record_changed","base_key":"","table_name":"","api_key":"","actions":[{"type":"send_webhook","webhook_url":"ftp://x"}]}`,
			field: "webhook_url",
		},
		{
			name:  "unknown trigger",
			doc:   `{"name":"a","trigger":"on_delete","base_key":"","table_name":"","api_key":"","actions":[{"type":"send_webhook","webhook_url":"https://x"}]}`,
			field: "trigger",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".json")
			require.Error(t, err)

			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Contains(t, ce.Field, tt.field)
		})
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"name":`), ".json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

// =============================================================================
// Directory loading
// =============================================================================

func TestLoadDir_SkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(dir, sampleRecipe())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"name": "broken"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	recipes, errs := LoadDir(dir)
	require.Len(t, recipes, 1)
	assert.Equal(t, "new-leads", recipes[0].Name)

	require.Len(t, errs, 1)
	var ce *ConfigurationError
	require.True(t, errors.As(errs[0], &ce))
	assert.Equal(t, filepath.Join(dir, "broken.json"), ce.Path)
}

func TestLoadDir_Missing(t *testing.T) {
	recipes, errs := LoadDir(filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, recipes)
	assert.Empty(t, errs)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.yaml"), []byte("name: alpha"), 0o600))

	path, err := Find(dir, "alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alpha.yaml"), path)

	path, err = Find(dir, "alpha.json")
	require.NoError(t, err, "extension in the name is ignored")
	assert.Equal(t, filepath.Join(dir, "alpha.yaml"), path)

	_, err = Find(dir, "beta")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFind_DottedName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leads.v2.json"), []byte(`{}`), 0o600))

	path, err := Find(dir, "leads.v2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "leads.v2.json"), path)

	path, err = Find(dir, "leads.v2.JSON")
	require.NoError(t, err, "only a recipe extension is stripped")
	assert.Equal(t, filepath.Join(dir, "leads.v2.json"), path)

	_, err = Find(dir, "leads")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// ValidateFile
// =============================================================================

func TestValidateFile_Valid(t *testing.T) {
	path, err := Save(t.TempDir(), sampleRecipe())
	require.NoError(t, err)

	r, errs := ValidateFile(path)
	assert.Empty(t, errs)
	require.NotNil(t, r)
	assert.Equal(t, "new-leads", r.Name)
}

func TestValidateFile_ReportsEveryViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	doc := `{"name":"","trigger":"record_changed","base_key":"","table_name":"","api_key":"","actions":[{"type":"send_webhook","webhook_url":"ftp://x"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r, errs := ValidateFile(path)
	assert.Nil(t, r)
	require.GreaterOrEqual(t, len(errs), 2)

	var fields []string
	for _, e := range errs {
		assert.Equal(t, path, e.Path)
		fields = append(fields, e.Field)
	}
	joined := strings.Join(fields, " ")
	assert.Contains(t, joined, "name")
	assert.Contains(t, joined, "webhook_url")
}

func TestValidateFile_Unreadable(t *testing.T) {
	_, errs := ValidateFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Len(t, errs, 1)
	assert.Equal(t, "cannot read file", errs[0].Message)
}

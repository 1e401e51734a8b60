package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tablehook/internal/recipe"
)

const minimalRecipe = `
recipe:
  name: r
  trigger: record_changed
  base_key: app
  table_name: T
  api_key: key
  actions:
    - type: send_webhook
      webhook_url: https://hooks.example.com/x
`

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "new_record_fires.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "new_record_fires", s.Name)
	assert.Equal(t, 10*time.Second, s.PollInterval)
	require.NotNil(t, s.FreshWindow)
	assert.Equal(t, 10*time.Second, *s.FreshWindow)
	assert.Len(t, s.Polls, 5)
	assert.Equal(t, -time.Hour, s.Polls[0].Records[0].Modified)

	r := s.RecipeUnderTest()
	require.NotNil(t, r)
	assert.Equal(t, "new-records", r.Name)
	assert.Equal(t, recipe.RecordChanged(), r.Trigger)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "name: x\nassertion: []\n" + minimalRecipe + "polls: [{records: []}]\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  minimalRecipe + "polls: [{records: []}]\n",
			want: "name is required",
		},
		{
			name: "missing recipe",
			doc:  "name: x\npolls: [{records: []}]\n",
			want: "recipe is required",
		},
		{
			name: "invalid recipe",
			doc:  "name: x\nrecipe:\n  name: r\n  trigger: on_delete\npolls: [{records: []}]\n",
			want: "recipe:",
		},
		{
			name: "no polls",
			doc:  "name: x\n" + minimalRecipe,
			want: "at least one poll is required",
		},
		{
			name: "records and error",
			doc:  "name: x\n" + minimalRecipe + "polls: [{error: boom, records: [{id: a}]}]\n",
			want: "mutually exclusive",
		},
		{
			name: "duplicate record",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: [{id: a}, {id: a}]}]\n",
			want: `duplicate id "a"`,
		},
		{
			name: "unknown assertion",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: []}]\nassertions: [{type: final_state}]\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "poll out of range",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: []}]\nassertions: [{type: delivered, record: a, poll: 3}]\n",
			want: "poll 3 out of range",
		},
		{
			name: "order needs two records",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: []}]\nassertions: [{type: delivery_order, url: u, records: [a]}]\n",
			want: "at least two records",
		},
		{
			name: "journal table",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: []}]\nassertions: [{type: journal, table: invocations}]\n",
			want: "table must be deliveries or cycles",
		},
		{
			name: "bad outcome",
			doc:  "name: x\n" + minimalRecipe + "polls: [{records: []}]\nassertions: [{type: delivery_count, outcome: maybe}]\n",
			want: `unknown outcome "maybe"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)
}

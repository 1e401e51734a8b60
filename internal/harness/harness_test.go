package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result := RunWithGolden(t, scenario)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "chained_actions.yaml"))
	require.NoError(t, err)

	first, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	second, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
recipe:
  name: r
  trigger: record_changed
  base_key: app
  table_name: T
  api_key: key
  actions:
    - type: send_webhook
      webhook_url: https://hooks.example.com/x
polls:
  - records: []
  - records:
      - { id: rec1, modified: -1m }
assertions:
  - type: not_delivered
    record: rec1
  - type: delivery_count
    count: 3
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "not_delivered")
	assert.Contains(t, result.Errors[1], "3 attempts")
	assert.Equal(t, 2, result.Polls)
}

func TestRun_FetchErrorSkipsCycle(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: fetch_error
recipe:
  name: r
  trigger: record_changed
  base_key: app
  table_name: T
  api_key: key
  actions:
    - type: send_webhook
      webhook_url: https://hooks.example.com/x
polls:
  - records: []
  - error: service unavailable
  - records:
      - { id: rec1, modified: -1m }
assertions:
  - type: delivered
    record: rec1
    poll: 2
  - type: journal
    table: cycles
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "+10s", result.Trace[0].At)
}

func TestRun_SeedFailureIsRetried(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: seed_retry
recipe:
  name: r
  trigger: record_changed
  base_key: app
  table_name: T
  api_key: key
  actions:
    - type: send_webhook
      webhook_url: https://hooks.example.com/x
polls:
  - error: boom
  - records:
      - { id: existing, modified: -1h }
  - records:
      - { id: existing, modified: -1h }
assertions:
  - type: delivery_count
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.Polls)
}

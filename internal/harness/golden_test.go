package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Canonical(t *testing.T) {
	result := &Result{
		Polls: 2,
		Trace: []TraceEvent{{
			Seq: 1, Poll: 1, At: "+0s", URL: "https://a", Record: "rec1",
			Payload: []byte(`{"b":1,"a":2}`), Outcome: outcomeDelivered,
		}},
	}

	data, err := Snapshot("demo", result)
	require.NoError(t, err)

	want := `{
  "polls": 2,
  "scenario_name": "demo",
  "trace": [
    {
      "at": "+0s",
      "outcome": "delivered",
      "payload": {
        "a": 2,
        "b": 1
      },
      "poll": 1,
      "record": "rec1",
      "seq": 1,
      "url": "https://a"
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}

func TestGoldenFile_WriteThenCompare(t *testing.T) {
	scenarioFile := filepath.Join(t.TempDir(), "leads.yaml")
	path := GoldenPath(scenarioFile, "leads")
	assert.Equal(t, filepath.Join(filepath.Dir(scenarioFile), "golden", "leads.golden"), path)

	result := &Result{Polls: 1, Trace: []TraceEvent{}}

	_, err := CompareGolden(path, "leads", result)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, WriteGolden(path, "leads", result))
	ok, err := CompareGolden(path, "leads", result)
	require.NoError(t, err)
	assert.True(t, ok)

	result.Polls = 2
	ok, err = CompareGolden(path, "leads", result)
	require.NoError(t, err)
	assert.False(t, ok)
}

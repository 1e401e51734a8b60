package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tablehook/internal/webhook"
)

// TraceSnapshot is the golden form of a run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Polls        int          `json:"polls"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot renders result as canonical, indented JSON.
func Snapshot(name string, result *Result) ([]byte, error) {
	canonical, err := webhook.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Polls:        result.Polls,
		Trace:        result.Trace,
	})
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, canonical, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// RunWithGolden executes a scenario, fails t on any assertion failure and
// compares the trace against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}

	AssertGolden(t, scenario.Name, result)
	return result
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

// GoldenPath is where a scenario file's golden trace lives outside of go
// test: golden/{name}.golden next to the scenario file.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// CompareGolden reports whether result matches the golden file at path.
// A missing golden file is returned as an error wrapping os.ErrNotExist.
func CompareGolden(path, name string, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := Snapshot(name, result)
	if err != nil {
		return false, fmt.Errorf("failed to snapshot trace: %w", err)
	}
	return bytes.Equal(want, got), nil
}

// WriteGolden records result as the golden file at path.
func WriteGolden(path, name string, result *Result) error {
	data, err := Snapshot(name, result)
	if err != nil {
		return fmt.Errorf("failed to snapshot trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

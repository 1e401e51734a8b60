package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarises a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// FindScenarios lists the .yaml and .yml files in dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in dir. A scenario that cannot be
// loaded or run counts as failed; the suite keeps going.
func RunSuite(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Total: len(paths)}
	for _, path := range paths {
		failure := ScenarioFailure{Path: path}

		scenario, err := LoadScenario(path)
		if err != nil {
			failure.Errors = []string{err.Error()}
			suite.add(failure)
			continue
		}
		failure.Name = scenario.Name

		result, err := Run(ctx, scenario)
		switch {
		case err != nil:
			failure.Errors = []string{err.Error()}
		case !result.Pass:
			failure.Errors = result.Errors
		}
		suite.add(failure)
	}
	return suite, nil
}

func (s *SuiteResult) add(f ScenarioFailure) {
	if len(f.Errors) == 0 {
		s.Passed++
		return
	}
	s.Failed++
	s.Failures = append(s.Failures, f)
}

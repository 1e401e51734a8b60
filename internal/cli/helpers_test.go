package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// testEnv is a temporary working directory with a config file pointing
// every path into it and at a fake Airtable API.
type testEnv struct {
	dir        string
	recipesDir string
	stateDB    string
	logFile    string
	configPath string
	airtable   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	airtable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records":[]}`)
	}))
	t.Cleanup(airtable.Close)

	env := &testEnv{
		dir:        dir,
		recipesDir: filepath.Join(dir, "recipes"),
		stateDB:    filepath.Join(dir, "state.db"),
		logFile:    filepath.Join(dir, "tablehook.log"),
		configPath: filepath.Join(dir, "tablehook.toml"),
		airtable:   airtable,
	}
	require.NoError(t, os.MkdirAll(env.recipesDir, 0o755))

	cfg := fmt.Sprintf(`recipes_dir = %q
state_db = %q

[log]
file = %q
verbosity = 0

[engine]
poll_interval = "1h"

[airtable]
base_url = %q
rate_limit = 0.0
`, env.recipesDir, env.stateDB, env.logFile, airtable.URL)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) rootOptions() *RootOptions {
	return &RootOptions{Format: "text", ConfigPath: e.configPath}
}

// writeRecipe saves a single-webhook record_changed recipe file.
func (e *testEnv) writeRecipe(t *testing.T, name string) string {
	t.Helper()
	doc := fmt.Sprintf(`{
    "name": %q,
    "trigger": "record_changed",
    "actions": [{"type": "send_webhook", "webhook_url": "https://hooks.example.com/%s", "filters": []}],
    "base_key": "appTEST",
    "table_name": "Leads",
    "api_key": "keyTEST",
    "filters": []
}
`, name, name)
	path := filepath.Join(e.recipesDir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// newTestSession wires an app against env and returns a session whose
// prompts are answered from answers, in order.
func newTestSession(t *testing.T, env *testEnv, answers ...string) (*Session, *bytes.Buffer) {
	t.Helper()

	a, err := newApp(env.rootOptions(), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.shutdown() })

	out := &bytes.Buffer{}
	return &Session{
		app:      a,
		out:      out,
		prompter: scriptedPrompter(out, answers...),
		ctx:      context.Background(),
	}, out
}

// scriptedPrompter returns a linePrompter that reads answers in order and
// cancels once they run out.
func scriptedPrompter(out io.Writer, answers ...string) *linePrompter {
	next := 0
	return &linePrompter{
		out: out,
		readLine: func(prompt string) (string, error) {
			fmt.Fprint(out, prompt)
			if next >= len(answers) {
				return "", ErrCancelled
			}
			line := answers[next]
			next++
			fmt.Fprintln(out, line)
			return line, nil
		},
	}
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(bytes.NewReader(nil))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %T: %v", err, err)
	return exitErr.Code
}

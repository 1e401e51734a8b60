package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Defaults
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "recipes", cfg.RecipesDir)
	assert.Equal(t, "tablehook.db", cfg.StateDB)
	assert.Equal(t, "tablehook.log", cfg.Log.File)
	assert.Equal(t, 1, cfg.Log.Verbosity)
	assert.Equal(t, 10*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.FreshWindow)
	assert.Equal(t, "Last Modified", cfg.Engine.LastModifiedField)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "https://api.airtable.com", cfg.Airtable.BaseURL)
	assert.Equal(t, 5.0, cfg.Airtable.RateLimit)
	assert.Equal(t, 1, cfg.Airtable.Burst)
	assert.Equal(t, "127.0.0.1:8088", cfg.Server.Listen)
	assert.Empty(t, cfg.Source)
}

// =============================================================================
// Files
// =============================================================================

func TestLoad_TOMLFileInDir(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tablehook.toml", `
recipes_dir = "automations"

[engine]
poll_interval = "1m"
`)

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "automations", cfg.RecipesDir)
	assert.Equal(t, time.Minute, cfg.Engine.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Engine.FreshWindow, "unset keys keep defaults")
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.yaml", `
webhook:
  timeout: 5s
  user_agent: acme-bot
airtable:
  rate_limit: 2.5
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "acme-bot", cfg.Webhook.UserAgent)
	assert.Equal(t, 2.5, cfg.Airtable.RateLimit)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), "")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tablehook.ini", "x=1")
	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tablehook.toml", "[engine\npoll_interval=")
	_, err := Load(path, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

// =============================================================================
// Environment
// =============================================================================

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tablehook.toml", `
state_db = "from-file.db"

[engine]
poll_interval = "1m"
`)
	t.Setenv("TABLEHOOK_STATE_DB", "from-env.db")
	t.Setenv("TABLEHOOK_ENGINE__POLL_INTERVAL", "30s")
	t.Setenv("TABLEHOOK_SERVER__LISTEN", ":9000")

	cfg, err := Load("", dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.StateDB)
	assert.Equal(t, 30*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, ":9000", cfg.Server.Listen)
}

func TestLoad_EnvWeaklyTyped(t *testing.T) {
	t.Setenv("TABLEHOOK_LOG__VERBOSITY", "3")
	t.Setenv("TABLEHOOK_AIRTABLE__BURST", "4")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Log.Verbosity)
	assert.Equal(t, 4, cfg.Airtable.Burst)
}

// =============================================================================
// Validate
// =============================================================================

func TestLoad_RejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("TABLEHOOK_ENGINE__POLL_INTERVAL", "0s")

	_, err := Load("", t.TempDir())
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "engine.poll_interval")
	assert.Equal(t, 1, strings.Count(err.Error(), ErrInvalid.Error()), "wrapped once")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Engine:   EngineConfig{PollInterval: -time.Second, FreshWindow: -time.Second},
		Airtable: AirtableConfig{RateLimit: -1},
	}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	for _, key := range []string{"recipes_dir", "engine.poll_interval", "engine.fresh_window", "webhook.timeout", "airtable.timeout", "airtable.rate_limit"} {
		assert.Contains(t, err.Error(), key)
	}
}

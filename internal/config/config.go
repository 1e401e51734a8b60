// Package config loads tablehook settings from embedded defaults, an
// optional TOML or YAML file and TABLEHOOK_ environment variables, in that
// order of precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates sections: TABLEHOOK_ENGINE__POLL_INTERVAL sets
// engine.poll_interval.
const EnvPrefix = "TABLEHOOK_"

// ErrInvalid is wrapped by every Load and Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultFiles are tried in order when no config file is given.
var DefaultFiles = []string{"tablehook.toml", "tablehook.yaml", "tablehook.yml"}

//go:embed embedded/defaults.toml
var defaultConfig []byte

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Config is the resolved configuration.
type Config struct {
	RecipesDir string         `koanf:"recipes_dir"`
	StateDB    string         `koanf:"state_db"`
	Log        LogConfig      `koanf:"log"`
	Engine     EngineConfig   `koanf:"engine"`
	Webhook    WebhookConfig  `koanf:"webhook"`
	Airtable   AirtableConfig `koanf:"airtable"`
	Server     ServerConfig   `koanf:"server"`

	// Source is the config file that was loaded, empty when none was.
	Source string `koanf:"-"`
}

type LogConfig struct {
	File      string `koanf:"file"`
	Verbosity int    `koanf:"verbosity"`
}

type EngineConfig struct {
	PollInterval      time.Duration `koanf:"poll_interval"`
	FreshWindow       time.Duration `koanf:"fresh_window"`
	LastModifiedField string        `koanf:"last_modified_field"`
}

type WebhookConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

type AirtableConfig struct {
	BaseURL   string        `koanf:"base_url"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
	Timeout   time.Duration `koanf:"timeout"`
}

type ServerConfig struct {
	Listen string `koanf:"listen"`
}

// Load resolves the configuration. path names an explicit config file,
// which must exist; when empty, DefaultFiles are tried in dir.
func Load(path, dir string) (*Config, error) {
	cfg, err := load(path, dir)
	if err != nil && !errors.Is(err, ErrInvalid) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, err
}

func load(path, dir string) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	source, err := resolveFile(path, dir)
	if err != nil {
		return nil, err
	}
	if source != "" {
		parser, err := parserFor(source)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(source), parser); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", source, err)
		}
	}

	// 3. Environment
	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Unmarshal
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveFile(path, dir string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return path, nil
	}
	for _, name := range DefaultFiles {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	default:
		return nil, fmt.Errorf("config file %s: unsupported format (want .toml, .yaml or .yml)", path)
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.RecipesDir == "" {
		errs = append(errs, errors.New("recipes_dir must not be empty"))
	}
	if c.Engine.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.poll_interval must be positive, got %s", c.Engine.PollInterval))
	}
	if c.Engine.FreshWindow < 0 {
		errs = append(errs, fmt.Errorf("engine.fresh_window must not be negative, got %s", c.Engine.FreshWindow))
	}
	if c.Webhook.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("webhook.timeout must be positive, got %s", c.Webhook.Timeout))
	}
	if c.Airtable.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("airtable.timeout must be positive, got %s", c.Airtable.Timeout))
	}
	if c.Airtable.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("airtable.rate_limit must not be negative, got %v", c.Airtable.RateLimit))
	}
	if c.Log.Verbosity < 0 {
		errs = append(errs, fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/roach88/tablehook/internal/airtable"
	"github.com/roach88/tablehook/internal/config"
	"github.com/roach88/tablehook/internal/engine"
	"github.com/roach88/tablehook/internal/logging"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
	"github.com/roach88/tablehook/internal/store"
	"github.com/roach88/tablehook/internal/webhook"
)

// stopTimeout bounds how long shutdown waits for runners to finish their
// current step.
const stopTimeout = 30 * time.Second

// app is the wired runtime shared by the shell and run commands.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
	journal   *store.Store
	registry  *prometheus.Registry
	manager   *engine.Manager

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// loadConfig resolves configuration for opts. -q drops the configured
// log.verbosity to 0 and every -v raises it by one.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, ".")
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Quiet {
		cfg.Log.Verbosity = 0
	}
	cfg.Log.Verbosity += opts.Verbose
	return cfg, nil
}

// newApp loads configuration, opens the log file and the journal, and
// builds the recipe manager. Console logs go to console.
func newApp(opts *RootOptions, console io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, closer := logging.New(logging.Options{
		Verbosity: cfg.Log.Verbosity,
		File:      cfg.Log.File,
		Console:   console,
	})
	a := &app{
		cfg:       cfg,
		logger:    logger,
		logCloser: closer,
		registry:  prometheus.NewRegistry(),
		limiters:  make(map[string]*rate.Limiter),
	}
	if cfg.Source != "" {
		logger.Debug().Str("path", cfg.Source).Msg("configuration loaded")
	}

	a.journal, err = store.Open(cfg.StateDB)
	if err != nil {
		closer.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sender := webhook.NewSender(
		webhook.WithTimeout(cfg.Webhook.Timeout),
		webhook.WithUserAgent(cfg.Webhook.UserAgent),
	)
	a.manager = engine.NewManager(a.newSource, sender,
		engine.WithPollInterval(cfg.Engine.PollInterval),
		engine.WithFreshWindow(cfg.Engine.FreshWindow),
		engine.WithJournal(a.journal),
		engine.WithMetrics(engine.MustNewMetrics(a.registry)),
		engine.WithLogger(logging.Component(logger, "engine")),
	)
	return a, nil
}

// newSource builds the Airtable client for a recipe. Recipes on the same
// base share one rate limiter.
func (a *app) newSource(r *recipe.Recipe) (record.Source, error) {
	return airtable.NewClient(r.Source.BaseKey, r.Source.TableName, r.Source.APIKey,
		airtable.WithBaseURL(a.cfg.Airtable.BaseURL),
		airtable.WithHTTPClient(&http.Client{Timeout: a.cfg.Airtable.Timeout}),
		airtable.WithLimiter(a.limiter(r.Source.BaseKey)),
		airtable.WithLastModifiedField(a.cfg.Engine.LastModifiedField),
	)
}

func (a *app) limiter(baseKey string) *rate.Limiter {
	a.limitersMu.Lock()
	defer a.limitersMu.Unlock()
	l, ok := a.limiters[baseKey]
	if !ok {
		l = airtable.NewLimiter(a.cfg.Airtable.RateLimit, a.cfg.Airtable.Burst)
		a.limiters[baseKey] = l
	}
	return l
}

// loadAll registers every recipe in the recipes directory. Files that fail
// to load or register are returned and skipped.
func (a *app) loadAll() (loaded int, errs []error) {
	recipes, errs := recipe.LoadDir(a.cfg.RecipesDir)
	for _, r := range recipes {
		if _, err := a.manager.Register(r); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	for _, err := range errs {
		a.logger.Error().Err(err).Msg("recipe not loaded")
	}
	a.logger.Info().Int("recipes", loaded).Str("dir", a.cfg.RecipesDir).Msg("recipes loaded")
	return loaded, errs
}

// loadOne returns the runner for name, registering the recipe from its
// file first if it is not registered yet.
func (a *app) loadOne(name string) (*engine.Runner, error) {
	if r, ok := a.manager.Runner(name); ok {
		return r, nil
	}
	path, err := recipe.Find(a.cfg.RecipesDir, name)
	if err != nil {
		return nil, err
	}
	rc, err := recipe.LoadFile(path)
	if err != nil {
		return nil, err
	}
	runner, err := a.manager.Register(rc)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("path", path).Str("recipe", rc.Name).Msg("recipe loaded")
	return runner, nil
}

// shutdown stops every runner, waits for them, then closes the journal and
// log file.
func (a *app) shutdown() error {
	a.manager.StopAll()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	var errs []error
	if err := a.manager.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for runners: %w", err))
	}
	if err := a.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing journal: %w", err))
	}
	a.logger.Debug().Msg("shutdown complete")
	if err := a.logCloser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing log file: %w", err))
	}
	return errors.Join(errs...)
}

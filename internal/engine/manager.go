package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
)

// SourceFactory builds the record source a recipe polls.
type SourceFactory func(r *recipe.Recipe) (record.Source, error)

// Manager owns the registered recipes and their runners.
//
// Thread-safety: all methods are safe for concurrent use. Each recipe's
// mutable state is owned by its runner; the manager only starts, stops and
// reads status.
type Manager struct {
	sources    SourceFactory
	dispatcher Dispatcher

	clock       Clock
	interval    time.Duration
	freshWindow time.Duration
	ids         IDGenerator
	journal     Journal
	metrics     *Metrics
	logger      zerolog.Logger

	mu      sync.RWMutex
	runners []*Runner // registration order
	byName  map[string]*Runner
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock shared by all runners.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithPollInterval sets the sleep between cycles.
//
// Default: 10s (DefaultPollInterval)
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithFreshWindow sets the too-fresh grace period.
//
// Default: 10s (DefaultFreshWindow)
func WithFreshWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.freshWindow = d
		}
	}
}

// WithIDGenerator sets the generator for cycle and delivery ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithJournal records cycles and deliveries. A nil journal records nothing.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithMetrics reports engine activity to Prometheus collectors.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger sets the logger. Runners add a recipe field.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager. sources builds each recipe's record source
// at registration; dispatcher performs every recipe's actions.
func NewManager(sources SourceFactory, dispatcher Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		sources:     sources,
		dispatcher:  dispatcher,
		clock:       SystemClock{},
		interval:    DefaultPollInterval,
		freshWindow: DefaultFreshWindow,
		ids:         UUIDv7Generator{},
		logger:      zerolog.Nop(),
		byName:      make(map[string]*Runner),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register validates r and creates its idle runner. A name that is already
// registered is rejected with a *recipe.ConfigurationError wrapping
// ErrDuplicateRecipe.
func (m *Manager) Register(r *recipe.Recipe) (*Runner, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[r.Name]; exists {
		return nil, &recipe.ConfigurationError{
			Recipe:  r.Name,
			Field:   "name",
			Message: "name is already in use",
			Err:     ErrDuplicateRecipe,
		}
	}

	src, err := m.sources(r)
	if err != nil {
		return nil, fmt.Errorf("create record source for %s: %w", r.Name, err)
	}

	logger := m.logger.With().Str("recipe", r.Name).Logger()
	runner := &Runner{
		recipe: r,
		source: src,
		executor: &Executor{
			recipe:     r.Name,
			dispatcher: m.dispatcher,
			ids:        m.ids,
			clock:      m.clock,
			journal:    m.journal,
			metrics:    m.metrics,
			logger:     logger,
		},
		detector: Detector{FreshWindow: m.freshWindow},
		clock:    m.clock,
		interval: m.interval,
		ids:      m.ids,
		journal:  m.journal,
		metrics:  m.metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}

	m.runners = append(m.runners, runner)
	m.byName[r.Name] = runner
	logger.Debug().Msg("recipe registered")
	return runner, nil
}

// Runner returns the runner registered under name.
func (m *Manager) Runner(name string) (*Runner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byName[name]
	return r, ok
}

// Len returns the number of registered recipes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runners)
}

// StartResult is the outcome of starting one runner.
type StartResult struct {
	Name string
	// Err is nil when the runner was started, ErrAlreadyRunning or
	// ErrStopped otherwise.
	Err error
}

// Started reports whether the runner was started by this call.
func (s StartResult) Started() bool { return s.Err == nil }

// StartAll starts every idle runner. Runners that are already running are
// reported, not restarted.
func (m *Manager) StartAll(ctx context.Context) []StartResult {
	results := make([]StartResult, 0, m.Len())
	for _, r := range m.snapshotRunners() {
		err := r.Start(ctx)
		if errors.Is(err, ErrAlreadyRunning) {
			r.logger.Info().Msg("recipe is already running")
		}
		results = append(results, StartResult{Name: r.Name(), Err: err})
	}
	return results
}

// Start starts the named runner.
func (m *Manager) Start(ctx context.Context, name string) error {
	r, ok := m.Runner(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipe, name)
	}
	return r.Start(ctx)
}

// Status is the reported state of one recipe.
type Status struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Running  bool      `json:"running"`
	LastPoll time.Time `json:"last_poll,omitzero"`
}

// Status reports every recipe in registration order.
func (m *Manager) Status() []Status {
	runners := m.snapshotRunners()
	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		st := r.State()
		out = append(out, Status{
			Name:     r.Name(),
			State:    st.String(),
			Running:  st == StateRunning,
			LastPoll: r.LastPoll(),
		})
	}
	return out
}

// StopAll asks every runner to stop. It does not wait; use Wait.
func (m *Manager) StopAll() {
	for _, r := range m.snapshotRunners() {
		r.Stop()
	}
}

// Wait blocks until every runner that has been started has stopped, or ctx
// is done.
func (m *Manager) Wait(ctx context.Context) error {
	for _, r := range m.snapshotRunners() {
		if r.State() == StateIdle {
			continue
		}
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) snapshotRunners() []*Runner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Runner(nil), m.runners...)
}

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/tablehook/internal/filter"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
	"github.com/roach88/tablehook/internal/store"
)

// DefaultPollInterval is the sleep between two cycles of a runner.
const DefaultPollInterval = 10 * time.Second

// State is a runner's lifecycle state: idle → running → stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// CycleReport summarises one polling cycle.
type CycleReport struct {
	CycleID   string
	StartedAt time.Time
	PolledAt  time.Time
	Fetched   int
	Fresh     int
	New       int
	Updated   int
	Triggered int
	Delivered int
	Skipped   int
	Failed    int
	Err       error
}

// Runner is the polling loop of one recipe. It owns the recipe's snapshot;
// only the runner goroutine reads or writes it.
type Runner struct {
	recipe   *recipe.Recipe
	source   record.Source
	executor *Executor
	detector Detector
	clock    Clock
	interval time.Duration
	ids      IDGenerator
	journal  Journal
	metrics  *Metrics
	logger   zerolog.Logger

	state atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	lastPoll time.Time

	done     chan struct{}
	doneOnce sync.Once

	snapshot Snapshot
}

// Name returns the recipe name.
func (r *Runner) Name() string { return r.recipe.Name }

// Recipe returns the recipe the runner executes.
func (r *Runner) Recipe() *recipe.Recipe { return r.recipe }

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

// Running reports whether the loop is active.
func (r *Runner) Running() bool { return r.State() == StateRunning }

// LastPoll returns the time of the most recent completed fetch, or the zero
// time before the first one.
func (r *Runner) LastPoll() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPoll
}

// Done is closed once the runner has stopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Start launches the polling goroutine. The idle → running transition is a
// compare-and-swap, so of two concurrent calls exactly one succeeds; the
// other gets ErrAlreadyRunning. A stopped runner returns ErrStopped.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		if r.State() == StateRunning {
			return ErrAlreadyRunning
		}
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.metrics.runnerStarted()
	r.logger.Info().Msg("recipe started")

	go r.loop(ctx)
	return nil
}

// Stop ends the loop after the current step. An idle runner moves straight
// to stopped. Stop does not wait; use Done.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		r.closeDone()
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) closeDone() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Runner) loop(ctx context.Context) {
	defer func() {
		r.state.Store(int32(StateStopped))
		r.metrics.runnerStopped()
		r.logger.Info().Msg("recipe stopped")
		r.closeDone()
	}()

	r.logger.Info().
		Str("base", r.recipe.Source.BaseKey).
		Str("table", r.recipe.Source.TableName).
		Msg("monitoring table for changes")

	for r.snapshot == nil {
		if err := r.seed(ctx); err != nil {
			r.logger.Error().Err(err).Msg("initial fetch failed, retrying next interval")
			if !r.sleep(ctx) {
				return
			}
		}
	}

	for {
		r.cycle(ctx)
		if !r.sleep(ctx) {
			return
		}
	}
}

// sleep waits one poll interval. It returns false when the runner is being
// stopped.
func (r *Runner) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(r.interval):
		return ctx.Err() == nil
	}
}

// seed performs the initial full fetch and stamps every existing record
// with the current time.
func (r *Runner) seed(ctx context.Context) error {
	records, err := r.source.FetchAll(ctx)
	if err != nil {
		return r.fetchError(err)
	}
	r.snapshot = Seed(records, r.clock.Now())
	r.logger.Info().Int("records", len(records)).Msg("snapshot seeded")
	return nil
}

// cycle runs one fetch → classify → act pass.
func (r *Runner) cycle(ctx context.Context) CycleReport {
	started := r.clock.Now()
	rep := CycleReport{CycleID: r.ids.Generate(), StartedAt: started}
	log := r.logger.With().Str("cycle", rep.CycleID).Logger()

	r.journalStart(ctx, rep, log)
	defer r.journalFinish(ctx, &rep, log)

	records, err := r.source.FetchAll(ctx)
	if err != nil {
		rep.Err = r.fetchError(err)
		log.Error().Err(rep.Err).Msg("fetch failed, cycle abandoned")
		r.metrics.cycleDone(r.recipe.Name, "fetch_error", r.clock.Now().Sub(started))
		return rep
	}
	rep.PolledAt = r.clock.Now()
	rep.Fetched = len(records)
	log.Debug().Int("records", len(records)).Msg("fetched records")

	outputs := Outputs{}
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		class := r.detector.Classify(r.snapshot, rec, r.clock.Now())
		r.metrics.recordClassified(r.recipe.Name, class)

		switch class {
		case ClassTooFresh:
			rep.Fresh++
			continue
		case ClassNew:
			rep.New++
		case ClassUpdated:
			rep.Updated++
		default:
			continue
		}
		log.Debug().Str("record", rec.ID).Stringer("class", class).Msg("record changed")

		if !r.triggered(rec, class, log) {
			continue
		}
		rep.Triggered++
		r.process(ctx, rep.CycleID, rep.PolledAt, rec, outputs, &rep, log)
	}

	r.mu.Lock()
	r.lastPoll = rep.PolledAt
	r.mu.Unlock()

	r.metrics.cycleDone(r.recipe.Name, "ok", r.clock.Now().Sub(started))
	return rep
}

// triggered evaluates the recipe's trigger and top-level filters.
// find_record only considers new records; record_changed considers new and
// updated ones.
func (r *Runner) triggered(rec record.Record, class Classification, log zerolog.Logger) bool {
	t := r.recipe.Trigger
	switch t.Kind {
	case recipe.TriggerFindRecord:
		if class != ClassNew || !filter.MatchesField(rec, t.FieldName, t.TextToFind) {
			return false
		}
		log.Info().
			Str("record", rec.ID).
			Str("field", t.FieldName).
			Str("text", t.TextToFind).
			Msg("detected record with matching text")
	case recipe.TriggerRecordChanged:
		if class != ClassNew && class != ClassUpdated {
			return false
		}
	default:
		return false
	}

	ok, err := filter.Matches(rec, r.recipe.Filters)
	if err != nil {
		log.Warn().Err(err).Str("record", rec.ID).Msg("recipe filter could not be evaluated, skipping record")
		return false
	}
	if !ok {
		log.Debug().Str("record", rec.ID).Msg("recipe filters did not match")
		return false
	}
	log.Info().Str("record", rec.ID).Str("trigger", string(t.Kind)).Msg("trigger matched")
	return true
}

// process runs every action for rec and updates its snapshot entry. Any
// delivery stamps the record with the poll time. If nothing was delivered
// but an action failed, the entry moves to the record's own last-modified
// time: the same state is not re-delivered, a later update is.
func (r *Runner) process(ctx context.Context, cycleID string, polledAt time.Time, rec record.Record, outputs Outputs, rep *CycleReport, log zerolog.Logger) {
	delivered, failed := 0, 0
	for i, action := range r.recipe.Actions {
		res, err := r.executor.Run(ctx, Step{CycleID: cycleID, Index: i, Action: action, Record: rec}, outputs)
		if err != nil {
			failed++
			log.Error().Err(err).Str("record", rec.ID).Str("action", action.Label(i)).Msg("action failed")
			continue
		}
		switch res.Outcome {
		case OutcomeDelivered:
			delivered++
		case OutcomeSkipped:
			rep.Skipped++
		}
	}
	rep.Delivered += delivered
	rep.Failed += failed

	switch {
	case delivered > 0:
		r.snapshot[rec.ID] = polledAt
	case failed > 0:
		if seen, ok := r.snapshot[rec.ID]; !ok || seen.Before(rec.LastModified) {
			r.snapshot[rec.ID] = rec.LastModified
		}
	}
}

func (r *Runner) fetchError(err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Recipe: r.recipe.Name, Err: err}
}

func (r *Runner) journalStart(ctx context.Context, rep CycleReport, log zerolog.Logger) {
	if r.journal == nil {
		return
	}
	c := store.Cycle{ID: rep.CycleID, Recipe: r.recipe.Name, StartedAt: rep.StartedAt}
	if err := r.journal.StartCycle(ctx, c); err != nil {
		log.Warn().Err(err).Msg("journal cycle start failed")
	}
}

func (r *Runner) journalFinish(ctx context.Context, rep *CycleReport, log zerolog.Logger) {
	if r.journal == nil {
		return
	}
	c := store.Cycle{
		ID:         rep.CycleID,
		Recipe:     r.recipe.Name,
		StartedAt:  rep.StartedAt,
		FinishedAt: r.clock.Now(),
		Fetched:    rep.Fetched,
		Fresh:      rep.Fresh,
		New:        rep.New,
		Updated:    rep.Updated,
	}
	if rep.Err != nil {
		c.Error = rep.Err.Error()
	}
	// The cycle may have been interrupted by Stop; the journal row is still
	// completed.
	if err := r.journal.FinishCycle(context.WithoutCancel(ctx), c); err != nil {
		log.Warn().Err(err).Msg("journal cycle finish failed")
	}
}

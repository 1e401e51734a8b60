package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/tablehook/internal/engine"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
	"github.com/roach88/tablehook/internal/store"
	"github.com/roach88/tablehook/internal/testutil"
	"github.com/roach88/tablehook/internal/webhook"
)

// Start is the engine clock reading at poll 0.
var Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// errScriptedFailure is returned by endpoints listed in a poll's fail list.
var errScriptedFailure = errors.New("scripted endpoint failure")

// runTimeout bounds a single scenario run.
const runTimeout = 30 * time.Second

// harness serves the scripted polls and records the engine's deliveries.
//
// The runner goroutine calls FetchAll and Dispatch strictly in sequence,
// so the current poll is known at every dispatch; the mutex only guards
// against the final read from the test goroutine.
type harness struct {
	scenario   *Scenario
	clock      *testutil.Clock
	dispatcher *testutil.Dispatcher
	cancel     context.CancelFunc

	mu     sync.Mutex
	poll   int // index of the poll being served, -1 before the first
	failed []string
	result *Result
}

// Run executes a scenario and evaluates its assertions.
//
// Each scenario runs in a fresh in-memory journal. The recipe runs under a
// real engine.Manager; only the table, the webhook endpoints and the clock
// are scripted.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	h := &harness{
		scenario:   scenario,
		clock:      testutil.NewClock(Start),
		dispatcher: testutil.NewDispatcher(),
		cancel:     cancel,
		poll:       -1,
		result:     NewResult(),
	}
	for url, res := range scenario.Responses {
		h.dispatcher.Respond(url, normalize(res))
	}

	opts := []engine.Option{
		engine.WithClock(h.clock),
		engine.WithIDGenerator(testutil.NewSequenceGenerator(scenario.Name)),
		engine.WithJournal(journal),
	}
	if scenario.PollInterval > 0 {
		opts = append(opts, engine.WithPollInterval(scenario.PollInterval))
	}
	if scenario.FreshWindow != nil {
		opts = append(opts, engine.WithFreshWindow(*scenario.FreshWindow))
	}
	mgr := engine.NewManager(func(*recipe.Recipe) (record.Source, error) {
		return record.SourceFunc(h.fetch), nil
	}, h, opts...)

	rec := scenario.RecipeUnderTest()
	if _, err := mgr.Register(rec); err != nil {
		return nil, fmt.Errorf("failed to register recipe: %w", err)
	}
	if err := mgr.Start(ctx, rec.Name); err != nil {
		return nil, fmt.Errorf("failed to start recipe: %w", err)
	}
	if err := mgr.Wait(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("scenario %s did not finish within %s", scenario.Name, runTimeout)
	}

	h.mu.Lock()
	result := h.result
	result.Polls = min(h.poll, len(scenario.Polls))
	h.mu.Unlock()

	actx := &AssertionContext{Ctx: context.Background(), Journal: journal, Recipe: rec.Name}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// fetch serves the next scripted poll. Once the script is exhausted it
// stops the run.
func (h *harness) fetch(ctx context.Context) ([]record.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.poll++
	for _, url := range h.failed {
		h.dispatcher.Fail(url, nil)
	}
	h.failed = nil

	if h.poll >= len(h.scenario.Polls) {
		h.cancel()
		return nil, context.Canceled
	}

	p := h.scenario.Polls[h.poll]
	for _, url := range p.Fail {
		h.dispatcher.Fail(url, errScriptedFailure)
	}
	h.failed = p.Fail

	if p.Error != "" {
		return nil, errors.New(p.Error)
	}
	records := make([]record.Record, 0, len(p.Records))
	for _, r := range p.Records {
		var fields map[string]any
		if r.Fields != nil {
			fields, _ = normalize(r.Fields).(map[string]any)
		}
		records = append(records, record.Record{
			ID:           r.ID,
			Fields:       fields,
			LastModified: Start.Add(r.Modified),
		})
	}
	return records, nil
}

// Dispatch forwards to the scripted endpoints and records the attempt.
//
// Implements engine.Dispatcher interface.
func (h *harness) Dispatch(ctx context.Context, req webhook.Request) (any, error) {
	out, err := h.dispatcher.Dispatch(ctx, req)

	payload, perr := webhook.MarshalCanonical(req.Payload)
	if perr != nil {
		return nil, perr
	}

	event := TraceEvent{
		URL:     req.URL,
		Record:  req.RecordID,
		Payload: payload,
		Outcome: outcomeDelivered,
		At:      formatOffset(h.clock.Now().Sub(Start)),
	}
	if err != nil {
		event.Outcome = outcomeFailed
	}

	h.mu.Lock()
	event.Poll = h.poll
	event.Seq = len(h.result.Trace) + 1
	h.result.Trace = append(h.result.Trace, event)
	h.mu.Unlock()

	return out, err
}

func formatOffset(d time.Duration) string {
	if d >= 0 {
		return "+" + d.String()
	}
	return d.String()
}

// normalize gives YAML values the shapes JSON decoding produces, so records
// and responses look the way they would coming off the wire: integers
// become float64 and maps become map[string]any.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

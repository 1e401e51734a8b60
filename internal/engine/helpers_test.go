package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
	"github.com/roach88/tablehook/internal/testutil"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

const (
	hookA = "https://hooks.example.com/a"
	hookB = "https://hooks.example.com/b"
)

// fixture wires a Manager to in-memory fakes.
type fixture struct {
	clock      *testutil.Clock
	source     *testutil.Source
	dispatcher *testutil.Dispatcher
	manager    *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:      testutil.NewClock(t0),
		source:     testutil.NewSource(),
		dispatcher: testutil.NewDispatcher(),
	}
	base := []Option{
		WithClock(f.clock),
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
	}
	f.manager = NewManager(
		func(*recipe.Recipe) (record.Source, error) { return f.source, nil },
		f.dispatcher,
		append(base, opts...)...,
	)
	return f
}

// register adds rec and returns its idle runner.
func (f *fixture) register(t *testing.T, rec *recipe.Recipe) *Runner {
	t.Helper()
	r, err := f.manager.Register(rec)
	require.NoError(t, err)
	return r
}

func seeded(t *testing.T, r *Runner) *Runner {
	t.Helper()
	require.NoError(t, r.seed(context.Background()))
	return r
}

func webhookRecipe(name string, actions ...recipe.Action) *recipe.Recipe {
	if len(actions) == 0 {
		actions = []recipe.Action{recipe.SendWebhook(hookA)}
	}
	return &recipe.Recipe{
		Name:    name,
		Trigger: recipe.RecordChanged(),
		Actions: actions,
		Source:  recipe.SourceConfig{BaseKey: "appBase", TableName: "Leads", APIKey: "key"},
	}
}

func rec(id string, modified time.Time, fields map[string]any) record.Record {
	return record.Record{ID: id, Fields: fields, LastModified: modified}
}

// stillClock never fires After, so a started runner blocks in its first
// sleep until stopped.
type stillClock struct{ now time.Time }

func (c stillClock) Now() time.Time                       { return c.now }
func (c stillClock) After(time.Duration) <-chan time.Time { return nil }

package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tablehook/internal/webhook"
)

// Dispatcher records every request and answers from per-URL responses.
// Unconfigured URLs succeed with a nil result.
//
// Thread-safety: All methods are safe for concurrent use.
type Dispatcher struct {
	mu        sync.Mutex
	requests  []webhook.Request
	responses map[string]any
	errors    map[string]error
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		responses: make(map[string]any),
		errors:    make(map[string]error),
	}
}

// Respond makes deliveries to url return result.
func (d *Dispatcher) Respond(url string, result any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[url] = result
}

// Fail makes deliveries to url return err. Pass nil to recover.
func (d *Dispatcher) Fail(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errors, url)
		return
	}
	d.errors[url] = err
}

// Dispatch records req and returns the configured outcome.
//
// Implements engine.Dispatcher interface.
func (d *Dispatcher) Dispatch(ctx context.Context, req webhook.Request) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if err := d.errors[req.URL]; err != nil {
		return nil, err
	}
	return d.responses[req.URL], nil
}

// Requests returns every request received so far, in order.
func (d *Dispatcher) Requests() []webhook.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]webhook.Request(nil), d.requests...)
}

// RequestsTo returns the requests sent to url.
func (d *Dispatcher) RequestsTo(url string) []webhook.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []webhook.Request
	for _, r := range d.requests {
		if r.URL == url {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests; configured responses are kept.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

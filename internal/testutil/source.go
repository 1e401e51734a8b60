package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tablehook/internal/record"
)

// Source is an in-memory record source. Tests replace its records between
// cycles to simulate creations and updates in the remote table.
//
// Thread-safety: All methods are safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	records []record.Record
	err     error
	calls   int
}

// NewSource creates a source returning records.
func NewSource(records ...record.Record) *Source {
	s := &Source{}
	s.SetRecords(records...)
	return s
}

// FetchAll returns a copy of the current records, or the configured error.
//
// Implements record.Source interface.
func (s *Source) FetchAll(ctx context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]record.Record(nil), s.records...), nil
}

// SetRecords replaces the table contents.
func (s *Source) SetRecords(records ...record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]record.Record(nil), records...)
}

// SetError makes every following fetch fail with err. Pass nil to recover.
func (s *Source) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many fetches were attempted.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

package engine

import (
	"time"

	"github.com/roach88/tablehook/internal/record"
)

// DefaultFreshWindow is the grace period during which a just-written record
// is ignored, so the engine never races the store's own write propagation.
const DefaultFreshWindow = 10 * time.Second

// Classification is the change class of a fetched record.
type Classification int

const (
	ClassUnchanged Classification = iota
	ClassTooFresh
	ClassNew
	ClassUpdated
)

func (c Classification) String() string {
	switch c {
	case ClassTooFresh:
		return "too_fresh"
	case ClassNew:
		return "new"
	case ClassUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Snapshot maps record ids to the time they were last processed. An id in
// the snapshot has been processed at or before its mapped time.
type Snapshot map[string]time.Time

// Seed builds the initial snapshot: every existing record is stamped with
// now so that pre-existing records never fire as new.
func Seed(records []record.Record, now time.Time) Snapshot {
	snap := make(Snapshot, len(records))
	for _, rec := range records {
		snap[rec.ID] = now
	}
	return snap
}

// Detector classifies records against a snapshot.
type Detector struct {
	FreshWindow time.Duration
}

// Classify returns exactly one class for rec. The too-fresh check takes
// precedence; an id missing from the snapshot is new even if its
// last-modified time is old; a known id is updated only when its snapshot
// time is strictly before its last-modified time.
func (d Detector) Classify(snap Snapshot, rec record.Record, now time.Time) Classification {
	if now.Sub(rec.LastModified) < d.FreshWindow {
		return ClassTooFresh
	}
	seen, ok := snap[rec.ID]
	if !ok {
		return ClassNew
	}
	if seen.Before(rec.LastModified) {
		return ClassUpdated
	}
	return ClassUnchanged
}

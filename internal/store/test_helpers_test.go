package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// baseTime anchors test timestamps.
var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustStartCycle inserts a cycle row starting at baseTime.
func mustStartCycle(t *testing.T, s *Store, id, recipe string) {
	t.Helper()
	if err := s.StartCycle(context.Background(), Cycle{ID: id, Recipe: recipe, StartedAt: baseTime}); err != nil {
		t.Fatalf("StartCycle() failed: %v", err)
	}
}

// createTestDelivery creates a delivered row with minimal required fields.
func createTestDelivery(id, cycleID, recipe string, at time.Time) Delivery {
	return Delivery{
		ID:            id,
		CycleID:       cycleID,
		Recipe:        recipe,
		RecordID:      "rec1",
		ActionIndex:   0,
		URL:           "https://hooks.example.com/a",
		Status:        StatusDelivered,
		PayloadDigest: "sha256:test",
		CreatedAt:     at,
	}
}

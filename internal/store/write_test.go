package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCycle_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := Cycle{ID: "cycle-1", Recipe: "leads", StartedAt: baseTime}
	require.NoError(t, s.StartCycle(ctx, c))
	require.NoError(t, s.StartCycle(ctx, c), "duplicate start should be ignored")

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFinishCycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustStartCycle(t, s, "cycle-1", "leads")

	err := s.FinishCycle(ctx, Cycle{
		ID:         "cycle-1",
		Recipe:     "leads",
		StartedAt:  baseTime,
		FinishedAt: baseTime.Add(1500 * time.Millisecond),
		Fetched:    12,
		Fresh:      1,
		New:        2,
		Updated:    3,
	})
	require.NoError(t, err)

	cycles, err := s.RecentCycles(ctx, "leads", 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)

	got := cycles[0]
	assert.Equal(t, baseTime, got.StartedAt)
	assert.Equal(t, baseTime.Add(1500*time.Millisecond), got.FinishedAt)
	assert.Equal(t, 12, got.Fetched)
	assert.Equal(t, 1, got.Fresh)
	assert.Equal(t, 2, got.New)
	assert.Equal(t, 3, got.Updated)
	assert.Empty(t, got.Error)
}

func TestFinishCycle_UnknownCycle(t *testing.T) {
	s := createTestStore(t)

	err := s.FinishCycle(context.Background(), Cycle{ID: "missing", FinishedAt: baseTime})
	assert.Error(t, err)
}

func TestRecordDelivery_RequiresCycle(t *testing.T) {
	s := createTestStore(t)

	err := s.RecordDelivery(context.Background(), createTestDelivery("d1", "no-such-cycle", "leads", baseTime))
	assert.Error(t, err, "foreign key should reject unknown cycle")
}

func TestRecordDelivery_Failed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustStartCycle(t, s, "cycle-1", "leads")

	d := createTestDelivery("d1", "cycle-1", "leads", baseTime)
	d.Status = StatusFailed
	d.Error = "webhook returned 502"
	d.ActionIndex = 2
	require.NoError(t, s.RecordDelivery(ctx, d))

	got, err := s.RecentDeliveries(ctx, "leads", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d, got[0])
}

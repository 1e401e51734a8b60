package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Cycle is one polling cycle of a recipe.
type Cycle struct {
	ID         string    `json:"cycle_id"`
	Recipe     string    `json:"recipe"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"` // zero while the cycle is in flight
	Fetched    int       `json:"fetched"`
	Fresh      int       `json:"fresh"`
	New        int       `json:"new"`
	Updated    int       `json:"updated"`
	Error      string    `json:"error,omitempty"`
}

// DeliveryStatus is the outcome of a dispatched action.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Delivery is one dispatched action. ID doubles as the delivery id sent to
// the webhook endpoint.
type Delivery struct {
	ID            string         `json:"id"`
	CycleID       string         `json:"cycle_id"`
	Recipe        string         `json:"recipe"`
	RecordID      string         `json:"record_id"`
	ActionIndex   int            `json:"action_index"`
	URL           string         `json:"url"`
	Status        DeliveryStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	PayloadDigest string         `json:"payload_digest,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StartCycle inserts a cycle row. Uses ON CONFLICT(cycle_id) DO NOTHING so a
// repeated write is silently ignored.
func (s *Store) StartCycle(ctx context.Context, c Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (cycle_id, recipe, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cycle_id) DO NOTHING
	`,
		c.ID,
		c.Recipe,
		formatTime(c.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start cycle: %w", err)
	}
	return nil
}

// FinishCycle records the counts and outcome of a cycle started with
// StartCycle.
func (s *Store) FinishCycle(ctx context.Context, c Cycle) error {
	finished := sql.NullString{}
	if !c.FinishedAt.IsZero() {
		finished = sql.NullString{String: formatTime(c.FinishedAt), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles
		SET finished_at = ?, fetched = ?, fresh = ?, new = ?, updated = ?, error = ?
		WHERE cycle_id = ?
	`,
		finished,
		c.Fetched,
		c.Fresh,
		c.New,
		c.Updated,
		c.Error,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("finish cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish cycle: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish cycle: unknown cycle %s", c.ID)
	}
	return nil
}

// RecordDelivery inserts a delivery row. The referenced cycle must exist
// (foreign key constraint).
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(id, cycle_id, recipe, record_id, action_index, url, status, error, payload_digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.CycleID,
		d.Recipe,
		d.RecordID,
		d.ActionIndex,
		d.URL,
		string(d.Status),
		d.Error,
		d.PayloadDigest,
		formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

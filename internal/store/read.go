package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultHistoryLimit caps history queries when the caller passes limit <= 0.
const DefaultHistoryLimit = 20

// RecentDeliveries returns the newest deliveries first. An empty recipe
// selects every recipe.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) RecentDeliveries(ctx context.Context, recipe string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cycle_id, recipe, record_id, action_index, url, status, error, payload_digest, created_at
		FROM deliveries
		WHERE ? = '' OR recipe = ?
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, recipe, recipe, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query deliveries: %w", ErrJournal, err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJournal, err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate deliveries: %w", ErrJournal, err)
	}
	return deliveries, nil
}

// RecentCycles returns the newest cycles first. An empty recipe selects
// every recipe.
func (s *Store) RecentCycles(ctx context.Context, recipe string, limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, recipe, started_at, finished_at, fetched, fresh, new, updated, error
		FROM cycles
		WHERE ? = '' OR recipe = ?
		ORDER BY started_at DESC, cycle_id COLLATE BINARY DESC
		LIMIT ?
	`, recipe, recipe, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query cycles: %w", ErrJournal, err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrJournal, err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate cycles: %w", ErrJournal, err)
	}
	return cycles, nil
}

func scanDelivery(rows *sql.Rows) (Delivery, error) {
	var (
		d         Delivery
		status    string
		createdAt string
	)
	if err := rows.Scan(
		&d.ID,
		&d.CycleID,
		&d.Recipe,
		&d.RecordID,
		&d.ActionIndex,
		&d.URL,
		&status,
		&d.Error,
		&d.PayloadDigest,
		&createdAt,
	); err != nil {
		return Delivery{}, fmt.Errorf("scan delivery: %w", err)
	}
	d.Status = DeliveryStatus(status)

	t, err := parseTime(createdAt)
	if err != nil {
		return Delivery{}, err
	}
	d.CreatedAt = t
	return d, nil
}

func scanCycle(rows *sql.Rows) (Cycle, error) {
	var (
		c         Cycle
		startedAt string
		finished  sql.NullString
	)
	if err := rows.Scan(
		&c.ID,
		&c.Recipe,
		&startedAt,
		&finished,
		&c.Fetched,
		&c.Fresh,
		&c.New,
		&c.Updated,
		&c.Error,
	); err != nil {
		return Cycle{}, fmt.Errorf("scan cycle: %w", err)
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return Cycle{}, err
	}
	c.StartedAt = t

	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return Cycle{}, err
		}
		c.FinishedAt = t
	}
	return c, nil
}

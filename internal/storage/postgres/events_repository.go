package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eventsphere/server/internal/domain/events"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventsRepository struct {
	pool *pgxpool.Pool
}

func NewEventsRepository(pool *pgxpool.Pool) *EventsRepository {
	return &EventsRepository{pool: pool}
}

func (r *EventsRepository) Create(ctx context.Context, event *events.Event) error {
	const query = `
INSERT INTO events (id, name, description, start_time, end_time, is_active, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.StartTime,
		event.EndTime,
		event.IsActive,
		event.CreatedBy,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *EventsRepository) ListActive(ctx context.Context) ([]events.Event, error) {
	const query = `
SELECT id, name, description, start_time, end_time, is_active, created_by, created_at
  FROM events
 WHERE is_active = true
 ORDER BY start_time`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Description,
			&e.StartTime,
			&e.EndTime,
			&e.IsActive,
			&e.CreatedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (r *EventsRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

// DeactivatePast is the bulk form the deactivation job runs. The WHERE
// clause makes it idempotent: already-inactive rows never match again.
func (r *EventsRepository) DeactivatePast(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE events SET is_active = false WHERE end_time < $1 AND is_active = true`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate past events: %w", err)
	}
	return tag.RowsAffected(), nil
}

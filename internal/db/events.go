package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendEventParams is the input to AppendEvent.
type AppendEventParams struct {
	EventID        uuid.UUID
	StreamID       string
	StreamPosition int64
	EventType      string
	AggregateID    string
	Timestamp      time.Time
	Payload        []byte
	Metadata       []byte
}

// AppendEvent inserts one event row. A unique_violation on
// (stream_id, stream_position) surfaces as a pgconn.PgError with code 23505;
// callers translate that into a concurrency error via IsUniqueViolation.
func (q *Queries) AppendEvent(ctx context.Context, p AppendEventParams) (Event, error) {
	const query = `
		INSERT INTO events (event_id, stream_id, stream_position, event_type, aggregate_id, timestamp, payload, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING event_id, stream_id, stream_position, event_type, aggregate_id, timestamp, payload, metadata`

	row := q.db.QueryRow(ctx, query,
		p.EventID, p.StreamID, p.StreamPosition, p.EventType, p.AggregateID, p.Timestamp, p.Payload, p.Metadata,
	)

	var e Event
	if err := row.Scan(&e.EventID, &e.StreamID, &e.StreamPosition, &e.EventType, &e.AggregateID, &e.Timestamp, &e.Payload, &e.Metadata); err != nil {
		return Event{}, err
	}
	return e, nil
}

// TailPosition returns the highest stream_position recorded for stream_id,
// or 0 if the stream has no events yet.
func (q *Queries) TailPosition(ctx context.Context, streamID string) (int64, error) {
	const query = `SELECT COALESCE(MAX(stream_position), 0) FROM events WHERE stream_id = $1`
	var tail int64
	if err := q.db.QueryRow(ctx, query, streamID).Scan(&tail); err != nil {
		return 0, fmt.Errorf("reading tail position for stream %s: %w", streamID, err)
	}
	return tail, nil
}

// ListEventsByStream returns events for a stream in position order, optionally
// bounded by [fromVersion, toVersion]. A zero bound means unbounded on that side.
func (q *Queries) ListEventsByStream(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]Event, error) {
	const query = `
		SELECT event_id, stream_id, stream_position, event_type, aggregate_id, timestamp, payload, metadata
		FROM events
		WHERE stream_id = $1
		  AND ($2 = 0 OR stream_position >= $2)
		  AND ($3 = 0 OR stream_position <= $3)
		ORDER BY stream_position ASC`

	rows, err := q.db.Query(ctx, query, streamID, fromVersion, toVersion)
	if err != nil {
		return nil, fmt.Errorf("listing events for stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.EventID, &e.StreamID, &e.StreamPosition, &e.EventType, &e.AggregateID, &e.Timestamp, &e.Payload, &e.Metadata); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// UpsertSnapshotParams is the input to UpsertSnapshot.
type UpsertSnapshotParams struct {
	AggregateID   string
	AggregateType string
	State         []byte
	Version       int64
	EventCount    int64
	UpdatedAt     time.Time
}

// UpsertSnapshot writes or replaces the single snapshot row for an aggregate.
// Retention is keep-latest-only (see the snapshot eviction design note).
func (q *Queries) UpsertSnapshot(ctx context.Context, p UpsertSnapshotParams) error {
	const query = `
		INSERT INTO snapshots (aggregate_id, aggregate_type, state, version, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (aggregate_id) DO UPDATE SET
			state = EXCLUDED.state,
			version = EXCLUDED.version,
			event_count = EXCLUDED.event_count,
			updated_at = EXCLUDED.updated_at`

	_, err := q.db.Exec(ctx, query, p.AggregateID, p.AggregateType, p.State, p.Version, p.EventCount, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting snapshot for %s: %w", p.AggregateID, err)
	}
	return nil
}

// LatestSnapshot returns the snapshot row for an aggregate, if one exists.
func (q *Queries) LatestSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	const query = `
		SELECT aggregate_id, aggregate_type, state, version, event_count, updated_at
		FROM snapshots WHERE aggregate_id = $1`

	row := q.db.QueryRow(ctx, query, aggregateID)
	var s Snapshot
	if err := row.Scan(&s.AggregateID, &s.AggregateType, &s.State, &s.Version, &s.EventCount, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

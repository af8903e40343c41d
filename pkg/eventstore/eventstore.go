// Package eventstore implements the append-only, per-stream event log with
// optimistic version fencing, snapshots, and replay.
//
// Append is the only operation with a concurrency hazard. Uniqueness of
// (stream_id, stream_position) is the enforcement mechanism: it is declared
// as a database unique constraint, and a violation on insert is translated
// into ConcurrencyError here rather than being handled with an explicit
// SELECT-then-INSERT race window.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/campusorch/enrollcore/internal/db"
)

// ConcurrencyError is returned when an Append's expected_version does not
// match the stream's actual current tail. It is recoverable: the caller
// refetches and retries.
type ConcurrencyError struct {
	StreamID string
	Expected int64
	Actual   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("eventstore: concurrency conflict on stream %s: expected version %d, actual %d", e.StreamID, e.Expected, e.Actual)
}

// Envelope is a single persisted, immutable event.
type Envelope struct {
	EventID        uuid.UUID
	StreamID       string
	StreamPosition int64
	EventType      string
	AggregateID    string
	Timestamp      time.Time
	Payload        json.RawMessage
	Metadata       json.RawMessage
}

// NewEvent is the caller-supplied shape of one event to append.
type NewEvent struct {
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	Metadata    json.RawMessage
}

// Snapshot is a point-in-time fold of an aggregate's events, used to bound
// replay cost. Exactly one snapshot is retained per aggregate (see the
// snapshot eviction design note): each save replaces the prior one.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	State         json.RawMessage
	Version       int64
	EventCount    int64
}

// queries is the subset of *db.Queries the event store needs. Declaring it
// here (rather than depending on the concrete type) lets tests substitute a
// fake without a database.
type queries interface {
	TailPosition(ctx context.Context, streamID string) (int64, error)
	AppendEvent(ctx context.Context, p db.AppendEventParams) (db.Event, error)
	ListEventsByStream(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]db.Event, error)
	UpsertSnapshot(ctx context.Context, p db.UpsertSnapshotParams) error
	LatestSnapshot(ctx context.Context, aggregateID string) (*db.Snapshot, error)
}

// Store is the event store. A single *Store is shared process-wide; streams
// are partitioned by stream_id and are independently ordered — there is no
// cross-stream total order requirement.
type Store struct {
	q        queries
	replayed singleflight.Group
}

// New builds a Store bound to dbtx (a pool, a connection, or an open
// transaction — callers needing the append and the read-model write to
// share a transaction pass the same tx to both).
func New(dbtx db.DBTX) *Store {
	return &Store{q: db.New(dbtx)}
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

// Append appends a single event to stream_id. If expectedVersion is nil, the
// event is appended at the current tail unconditionally. Otherwise the
// append is conditional: it succeeds only if the stream's current tail
// equals *expectedVersion, assigning stream_position = *expectedVersion + 1;
// on mismatch it returns *ConcurrencyError with the actual observed tail.
func (s *Store) Append(ctx context.Context, streamID string, event NewEvent, expectedVersion *int64) (Envelope, error) {
	tail, err := s.q.TailPosition(ctx, streamID)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventstore: reading tail for %s: %w", streamID, err)
	}

	if expectedVersion != nil && tail != *expectedVersion {
		return Envelope{}, &ConcurrencyError{StreamID: streamID, Expected: *expectedVersion, Actual: tail}
	}

	nextPosition := tail + 1
	row, err := s.q.AppendEvent(ctx, db.AppendEventParams{
		EventID:        uuid.New(),
		StreamID:       streamID,
		StreamPosition: nextPosition,
		EventType:      event.EventType,
		AggregateID:    event.AggregateID,
		Timestamp:      now(),
		Payload:        event.Payload,
		Metadata:       event.Metadata,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Another writer won the race for this position between our
			// tail read and our insert; refetch the real tail for the caller.
			actual, tailErr := s.q.TailPosition(ctx, streamID)
			if tailErr != nil {
				actual = nextPosition
			}
			expected := tail
			if expectedVersion != nil {
				expected = *expectedVersion
			}
			return Envelope{}, &ConcurrencyError{StreamID: streamID, Expected: expected, Actual: actual}
		}
		return Envelope{}, fmt.Errorf("eventstore: appending to %s: %w", streamID, err)
	}

	return rowToEnvelope(row), nil
}

// AppendBatch appends multiple uncommitted events from the same aggregate
// to a stream in one logical call. The first event is fenced against
// expectedVersion and each later one against the position the previous
// append assigned. The batch is not atomic: if an append fails partway, the
// events appended before it stay in the stream. Used by the orchestrator to
// persist an aggregate's buffered events (see pkg/enrollment).
func (s *Store) AppendBatch(ctx context.Context, streamID string, events []NewEvent, expectedVersion *int64) ([]Envelope, error) {
	out := make([]Envelope, 0, len(events))
	version := expectedVersion
	for _, e := range events {
		env, err := s.Append(ctx, streamID, e, version)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
		next := env.StreamPosition
		version = &next
	}
	return out, nil
}

// Read returns the events for a stream in order, optionally bounded by
// [fromVersion, toVersion] (0 on either side means unbounded). The result is
// always gap-free and ordered, per the underlying unique-position constraint.
func (s *Store) Read(ctx context.Context, streamID string, fromVersion, toVersion int64) ([]Envelope, error) {
	rows, err := s.q.ListEventsByStream(ctx, streamID, fromVersion, toVersion)
	if err != nil {
		return nil, err
	}
	out := make([]Envelope, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToEnvelope(r))
	}
	return out, nil
}

// SaveSnapshot upserts the single retained snapshot for an aggregate.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	return s.q.UpsertSnapshot(ctx, db.UpsertSnapshotParams{
		AggregateID:   snap.AggregateID,
		AggregateType: snap.AggregateType,
		State:         snap.State,
		Version:       snap.Version,
		EventCount:    snap.EventCount,
		UpdatedAt:     now(),
	})
}

// LatestSnapshot returns the retained snapshot for an aggregate, or nil if
// none has been taken yet.
func (s *Store) LatestSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	row, err := s.q.LatestSnapshot(ctx, aggregateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &Snapshot{
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		State:         row.State,
		Version:       row.Version,
		EventCount:    row.EventCount,
	}, nil
}

// Fold folds a snapshot (if any) plus subsequent events into a live
// aggregate state. Fold is supplied by the caller's aggregate package so
// eventstore stays ignorant of any particular aggregate's event types.
type Fold func(state json.RawMessage, version int64, events []Envelope) (json.RawMessage, int64, error)

type replayResult struct {
	state   json.RawMessage
	version int64
}

// Replay fetches the latest snapshot for aggregateID (if any) and folds
// subsequent events on top of it using fold, returning the resulting state
// and version. With no snapshot, it folds from the empty state at version 0.
//
// Concurrent Replay calls for the same aggregateID are collapsed onto a
// single underlying read+fold via singleflight: a hot aggregate being
// reconciled by several callers at once does not fan out into N redundant
// snapshot/event reads.
func (s *Store) Replay(ctx context.Context, streamID, aggregateID string, fold Fold) (json.RawMessage, int64, error) {
	v, err, _ := s.replayed.Do(aggregateID, func() (any, error) {
		snap, err := s.LatestSnapshot(ctx, aggregateID)
		if err != nil {
			return nil, fmt.Errorf("eventstore: loading snapshot for %s: %w", aggregateID, err)
		}

		var state json.RawMessage
		var version int64
		fromVersion := int64(1)
		if snap != nil {
			state = snap.State
			version = snap.Version
			fromVersion = snap.Version + 1
		}

		events, err := s.Read(ctx, streamID, fromVersion, 0)
		if err != nil {
			return nil, fmt.Errorf("eventstore: reading stream %s from %d: %w", streamID, fromVersion, err)
		}

		foldedState, foldedVersion, err := fold(state, version, events)
		if err != nil {
			return nil, err
		}
		return replayResult{state: foldedState, version: foldedVersion}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	r := v.(replayResult)
	return r.state, r.version, nil
}

func rowToEnvelope(r db.Event) Envelope {
	return Envelope{
		EventID:        r.EventID,
		StreamID:       r.StreamID,
		StreamPosition: r.StreamPosition,
		EventType:      r.EventType,
		AggregateID:    r.AggregateID,
		Timestamp:      r.Timestamp,
		Payload:        json.RawMessage(r.Payload),
		Metadata:       json.RawMessage(r.Metadata),
	}
}

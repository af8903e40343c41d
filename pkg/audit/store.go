package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/campusorch/enrollcore/internal/db"
)

// PostgresStore persists audit entries via internal/db's hand-written
// Queries, holding a single *db.Queries.
type PostgresStore struct {
	q *db.Queries
}

// NewPostgresStore builds a PostgresStore bound to dbtx (a pool, a
// connection, or an open transaction).
func NewPostgresStore(dbtx db.DBTX) *PostgresStore {
	return &PostgresStore{q: db.New(dbtx)}
}

func textOrEmpty(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func ptrText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func rowToEntry(row db.AuditLogEntry) (Entry, error) {
	var meta map[string]any
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			return Entry{}, fmt.Errorf("decoding audit metadata for %s: %w", row.ID, err)
		}
	}
	return Entry{
		ID:           row.ID,
		Timestamp:    row.Timestamp,
		Action:       row.Action,
		ResourceType: row.ResourceType,
		ResourceID:   textOrEmpty(row.ResourceID),
		ActorID:      textOrEmpty(row.ActorID),
		Metadata:     meta,
		PreviousHash: row.PreviousHash,
		EntryHash:    row.EntryHash,
	}, nil
}

// Tail returns the most recent entry, or ok=false if the chain is empty.
func (s *PostgresStore) Tail(ctx context.Context) (Entry, bool, error) {
	row, ok, err := s.q.GetAuditTail(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	if !ok {
		return Entry{}, false, nil
	}
	e, err := rowToEntry(row)
	return e, true, err
}

// Insert persists a computed entry.
func (s *PostgresStore) Insert(ctx context.Context, e Entry) (Entry, error) {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding audit metadata: %w", err)
	}

	row, err := s.q.InsertAuditEntry(ctx, db.InsertAuditEntryParams{
		ID:           e.ID,
		Timestamp:    e.Timestamp,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   ptrText(e.ResourceID),
		ActorID:      ptrText(e.ActorID),
		Metadata:     metaJSON,
		PreviousHash: e.PreviousHash,
		EntryHash:    e.EntryHash,
	})
	if err != nil {
		return Entry{}, err
	}
	return rowToEntry(row)
}

// All returns the entire chain in append order.
func (s *PostgresStore) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.q.ListAuditEntries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Page returns up to limit entries in chain order, starting after the
// (afterTime, afterID) keyset position. Pass a nil afterTime to start from
// the beginning of the chain.
func (s *PostgresStore) Page(ctx context.Context, afterTime *time.Time, afterID uuid.UUID, limit int) ([]Entry, error) {
	var after pgtype.Timestamptz
	if afterTime != nil {
		after = pgtype.Timestamptz{Time: *afterTime, Valid: true}
	}
	rows, err := s.q.ListAuditEntriesAfter(ctx, after, afterID, int32(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

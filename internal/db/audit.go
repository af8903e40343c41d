package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// InsertAuditEntryParams is the input to InsertAuditEntry.
type InsertAuditEntryParams struct {
	ID           uuid.UUID
	Timestamp    time.Time
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	ActorID      pgtype.Text
	Metadata     []byte
	PreviousHash string
	EntryHash    string
}

// InsertAuditEntry appends one row to the hash-chained audit log.
func (q *Queries) InsertAuditEntry(ctx context.Context, p InsertAuditEntryParams) (AuditLogEntry, error) {
	const query = `
		INSERT INTO audit_log (id, timestamp, action, resource_type, resource_id, actor_id, metadata, previous_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, timestamp, action, resource_type, resource_id, actor_id, metadata, previous_hash, entry_hash`

	row := q.db.QueryRow(ctx, query,
		p.ID, p.Timestamp, p.Action, p.ResourceType, p.ResourceID, p.ActorID, p.Metadata, p.PreviousHash, p.EntryHash,
	)

	var e AuditLogEntry
	if err := row.Scan(&e.ID, &e.Timestamp, &e.Action, &e.ResourceType, &e.ResourceID, &e.ActorID, &e.Metadata, &e.PreviousHash, &e.EntryHash); err != nil {
		return AuditLogEntry{}, err
	}
	return e, nil
}

// GetAuditTail returns the most recently written audit entry, or
// (AuditLogEntry{}, false, nil) if the chain is empty.
func (q *Queries) GetAuditTail(ctx context.Context) (AuditLogEntry, bool, error) {
	const query = `
		SELECT id, timestamp, action, resource_type, resource_id, actor_id, metadata, previous_hash, entry_hash
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT 1`

	row := q.db.QueryRow(ctx, query)
	var e AuditLogEntry
	err := row.Scan(&e.ID, &e.Timestamp, &e.Action, &e.ResourceType, &e.ResourceID, &e.ActorID, &e.Metadata, &e.PreviousHash, &e.EntryHash)
	if err == pgx.ErrNoRows {
		return AuditLogEntry{}, false, nil
	}
	if err != nil {
		return AuditLogEntry{}, false, fmt.Errorf("reading audit tail: %w", err)
	}
	return e, true, nil
}

// ListAuditEntries returns the full chain in append order. Intended for
// verification and tests, not production reads of an unbounded log.
func (q *Queries) ListAuditEntries(ctx context.Context) ([]AuditLogEntry, error) {
	const query = `
		SELECT id, timestamp, action, resource_type, resource_id, actor_id, metadata, previous_hash, entry_hash
		FROM audit_log ORDER BY timestamp ASC, id ASC`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.ResourceType, &e.ResourceID, &e.ActorID, &e.Metadata, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListAuditEntriesAfter returns up to limit entries in chain order, starting
// after the given (timestamp, id) keyset cursor. A null after timestamp
// starts from the beginning of the chain.
func (q *Queries) ListAuditEntriesAfter(ctx context.Context, after pgtype.Timestamptz, afterID uuid.UUID, limit int32) ([]AuditLogEntry, error) {
	const query = `
		SELECT id, timestamp, action, resource_type, resource_id, actor_id, metadata, previous_hash, entry_hash
		FROM audit_log
		WHERE $1::timestamptz IS NULL OR (timestamp, id) > ($1, $2)
		ORDER BY timestamp ASC, id ASC
		LIMIT $3`

	rows, err := q.db.Query(ctx, query, after, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries after cursor: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.ResourceType, &e.ResourceID, &e.ActorID, &e.Metadata, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

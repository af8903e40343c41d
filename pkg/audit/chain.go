// Package audit implements the tamper-evident, hash-chained audit log.
//
// Each entry's hash is computed over every other field plus the previous
// entry's hash, so mutating any historical field breaks verification for
// that entry and every entry after it. The chain only tolerates a single
// writer extending the tail at a time — Append serializes on an in-process
// mutex, matching the read-then-append discipline the chain requires.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HashAlgorithm names the fixed digest the chain is built on. It is not
// negotiable: stored hashes are only comparable under one algorithm.
const HashAlgorithm = "sha256"

// Entry is a single audit log record, including the chain fields.
type Entry struct {
	ID           uuid.UUID
	Timestamp    time.Time
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Metadata     map[string]any
	PreviousHash string
	EntryHash    string
}

// NewEntryParams is the caller-supplied input to Append; the chain fields
// (ID, Timestamp, PreviousHash, EntryHash) are computed by the chain itself.
type NewEntryParams struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Metadata     map[string]any
}

// canonicalPayload returns the stable byte representation hashed into
// EntryHash. Map keys are sorted so Metadata serializes deterministically
// regardless of insertion order.
func canonicalPayload(e Entry) []byte {
	var b strings.Builder
	b.WriteString(e.ID.String())
	b.WriteByte('|')
	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(e.Action)
	b.WriteByte('|')
	b.WriteString(e.ResourceType)
	b.WriteByte('|')
	b.WriteString(e.ResourceID)
	b.WriteByte('|')
	b.WriteString(e.ActorID)
	b.WriteByte('|')
	b.WriteString(canonicalMetadata(e.Metadata))
	b.WriteByte('|')
	b.WriteString(e.PreviousHash)
	return []byte(b.String())
}

// canonicalMetadata produces a deterministic JSON rendering of an
// arbitrarily-ordered metadata map by sorting keys before marshaling.
func canonicalMetadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// ComputeHash returns the SHA-256 hex digest of the entry's canonical payload.
func ComputeHash(e Entry) string {
	sum := sha256.Sum256(canonicalPayload(e))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether e.EntryHash matches the hash of e's own fields.
func VerifyHash(e Entry) bool {
	return e.EntryHash == ComputeHash(e)
}

// VerifyChain reports whether cur legitimately follows prev: prev's own hash
// must verify, cur's previous_hash must equal prev's entry_hash, and cur's
// own hash must verify.
func VerifyChain(prev, cur Entry) bool {
	return VerifyHash(prev) && cur.PreviousHash == prev.EntryHash && VerifyHash(cur)
}

// ErrChainBroken is returned by Verify when any link in the stored chain
// fails VerifyHash or VerifyChain.
var ErrChainBroken = errors.New("audit: chain integrity check failed")

// Store is the persistence boundary a Chain writes through. It is satisfied
// by *audit.PostgresStore.
type Store interface {
	Tail(ctx context.Context) (Entry, bool, error)
	Insert(ctx context.Context, e Entry) (Entry, error)
	All(ctx context.Context) ([]Entry, error)
}

// Chain is the tamper-evident audit log. It is safe for concurrent use:
// Append serializes tail-read-then-insert behind mu so two writers can
// never observe the same tail and fork the chain.
type Chain struct {
	store Store
	mu    sync.Mutex
}

// NewChain builds a Chain backed by the given Store.
func NewChain(store Store) *Chain {
	return &Chain{store: store}
}

// Append computes the new entry's hash against the current tail and
// persists it. A failure here is fatal for the enclosing operation, which
// must not be acknowledged to its caller if this returns an error.
func (c *Chain) Append(ctx context.Context, p NewEntryParams, now time.Time) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := ""
	tail, ok, err := c.store.Tail(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: reading chain tail: %w", err)
	}
	if ok {
		prevHash = tail.EntryHash
	}

	entry := Entry{
		ID:           uuid.New(),
		Timestamp:    now,
		Action:       p.Action,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		ActorID:      p.ActorID,
		Metadata:     p.Metadata,
		PreviousHash: prevHash,
	}
	entry.EntryHash = ComputeHash(entry)

	persisted, err := c.store.Insert(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: persisting entry: %w", err)
	}
	return persisted, nil
}

// Verify walks the full stored chain in append order and confirms every
// link. It returns ErrChainBroken (wrapping the index of the first bad
// link) on the first failure found.
func (c *Chain) Verify(ctx context.Context) error {
	entries, err := c.store.All(ctx)
	if err != nil {
		return fmt.Errorf("audit: loading chain for verification: %w", err)
	}

	for i, e := range entries {
		if !VerifyHash(e) {
			return fmt.Errorf("%w: entry %d (%s) has invalid hash", ErrChainBroken, i, e.ID)
		}
		if i == 0 {
			if e.PreviousHash != "" {
				return fmt.Errorf("%w: entry 0 (%s) has non-empty previous_hash", ErrChainBroken, e.ID)
			}
			continue
		}
		if !VerifyChain(entries[i-1], e) {
			return fmt.Errorf("%w: entry %d (%s) does not chain from entry %d", ErrChainBroken, i, e.ID, i-1)
		}
	}
	return nil
}

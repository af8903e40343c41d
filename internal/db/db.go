// Package db holds the hand-written query layer shared by the enrollment
// core's storage-backed components. It follows the sqlc-style split between
// a thin DBTX transport interface and a Queries struct of typed methods,
// so the same methods run against a pool, a connection, or an open
// transaction interchangeably.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, pgx.Tx, and *pgx.Conn.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries wraps a DBTX with the typed statements used by the enrollment core.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to the given DBTX.
func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isUniqueViolationOn reports whether err is a unique_violation on the named
// constraint specifically, distinguishing e.g. the events table's
// (stream_id, stream_position) conflict from the enrollments table's
// active-enrollment conflict.
func isUniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// ErrActiveEnrollmentExists is returned by UpsertEnrollment when the insert
// would create a second active (enrolled/waitlisted) row for the same
// (student_id, section_id) pair, violating the single-active-enrollment
// invariant enforced by enrollments_active_student_section_uidx.
var ErrActiveEnrollmentExists = errors.New("db: an active enrollment already exists for this student and section")

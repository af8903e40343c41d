package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Event is a single row of the append-only events table.
type Event struct {
	EventID        uuid.UUID
	StreamID       string
	StreamPosition int64
	EventType      string
	AggregateID    string
	Timestamp      time.Time
	Payload        []byte
	Metadata       []byte
}

// Snapshot is a single row of the snapshots table. One row per aggregate_id:
// snapshots are upserted, never appended, so retention is keep-latest-only.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	State         []byte
	Version       int64
	EventCount    int64
	UpdatedAt     time.Time
}

// AuditLogEntry is a single row of the hash-chained audit_log table.
type AuditLogEntry struct {
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

// Course is a row of the courses read-model table.
type Course struct {
	CourseCode    string
	Credits       int32
	Prerequisites []string
	Corequisites  []string
	Level         string
	Department    string
}

// Section is a row of the sections read-model table.
type Section struct {
	SectionID          uuid.UUID
	CourseCode         string
	Semester           string
	InstructorID       string
	ScheduleDays       []string
	StartTimeMinutes   int32
	EndTimeMinutes     int32
	RoomID             pgtype.Text
	MaxEnrollment      int32
	CurrentEnrollment  int32
	WaitlistSize       int32
	MaxWaitlist        int32
	AddDropDeadline    time.Time
	WithdrawalDeadline time.Time
}

// Student is a row of the students read-model table.
type Student struct {
	StudentID        string
	GPA              float64
	AcademicStanding string
}

// EnrollmentRow is a row of the enrollments read-model table, projected from
// the event stream by the orchestrator.
type EnrollmentRow struct {
	EnrollmentID     uuid.UUID
	StudentID        string
	SectionID        uuid.UUID
	Status           string
	WaitlistPosition pgtype.Int4
	EnrolledAt       time.Time
	Version          int64
}

// CompletedCourse is a row projecting a student's completed coursework.
type CompletedCourse struct {
	StudentID  string
	CourseCode string
	Grade      string
}

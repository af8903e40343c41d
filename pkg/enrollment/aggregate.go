// Package enrollment implements the enrollment aggregate's state machine
// and the orchestrating Service that drives it against the policy engine,
// event store, lock manager, and audit chain.
package enrollment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is one of the aggregate's finite states.
type Status string

const (
	StatusNone       Status = ""
	StatusEnrolled   Status = "enrolled"
	StatusWaitlisted Status = "waitlisted"
	StatusDropped    Status = "dropped"
	StatusCompleted  Status = "completed"
)

// EventType enumerates the domain events an Aggregate can emit. Each state
// transition emits exactly one event.
type EventType string

const (
	EventStudentEnrolled     EventType = "StudentEnrolled"
	EventStudentWaitlisted   EventType = "StudentWaitlisted"
	EventStudentPromoted     EventType = "StudentPromoted"
	EventStudentDropped      EventType = "StudentDropped"
	EventEnrollmentCompleted EventType = "EnrollmentCompleted"
)

// DomainEvent is one event in an enrollment aggregate's stream, prior to
// being assigned a stream_position by the event store.
type DomainEvent struct {
	Type      EventType
	Payload   json.RawMessage
	Timestamp time.Time
}

// StudentEnrolledPayload is the payload of EventStudentEnrolled.
type StudentEnrolledPayload struct {
	StudentID string `json:"student_id"`
	SectionID string `json:"section_id"`
}

// StudentWaitlistedPayload is the payload of EventStudentWaitlisted.
type StudentWaitlistedPayload struct {
	StudentID        string `json:"student_id"`
	SectionID        string `json:"section_id"`
	WaitlistPosition int    `json:"waitlist_position"`
}

// StudentPromotedPayload is the payload of EventStudentPromoted.
type StudentPromotedPayload struct {
	FromWaitlistPosition int `json:"from_waitlist_position"`
}

// StudentDroppedPayload is the payload of EventStudentDropped.
type StudentDroppedPayload struct {
	PriorStatus Status `json:"prior_status"`
}

// EnrollmentCompletedPayload is the payload of EventEnrollmentCompleted.
type EnrollmentCompletedPayload struct{}

// Aggregate is the enrollment aggregate root: one instance per enrollment
// (a student who drops and later re-enrolls in the same section gets a new
// one). It buffers uncommitted events
// until the orchestrator persists them and calls MarkCommitted.
type Aggregate struct {
	EnrollmentID     uuid.UUID
	StudentID        string
	SectionID        string
	Status           Status
	WaitlistPosition int
	EnrolledAt       time.Time
	Version          int64

	uncommitted []DomainEvent
}

// NewAggregate creates a fresh aggregate in its zero (none) state, identified
// by a newly generated enrollment ID.
func NewAggregate(studentID, sectionID string) *Aggregate {
	return &Aggregate{
		EnrollmentID: uuid.New(),
		StudentID:    studentID,
		SectionID:    sectionID,
		Status:       StatusNone,
	}
}

// Uncommitted returns the events buffered since the last MarkCommitted call.
func (a *Aggregate) Uncommitted() []DomainEvent {
	return a.uncommitted
}

// MarkCommitted clears the uncommitted buffer after the orchestrator has
// durably persisted those events to the stream.
func (a *Aggregate) MarkCommitted() {
	a.uncommitted = nil
}

// apply transitions the aggregate's state for one event and increments
// Version. It is the single source of truth for how each event type
// mutates state, used both when a fresh transition occurs and when
// replaying a stream to reconstruct state.
func (a *Aggregate) apply(event DomainEvent) error {
	switch event.Type {
	case EventStudentEnrolled:
		var p StudentEnrolledPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("applying StudentEnrolled: %w", err)
		}
		a.StudentID = p.StudentID
		a.SectionID = p.SectionID
		a.Status = StatusEnrolled
		a.WaitlistPosition = 0
		a.EnrolledAt = event.Timestamp

	case EventStudentWaitlisted:
		var p StudentWaitlistedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("applying StudentWaitlisted: %w", err)
		}
		a.StudentID = p.StudentID
		a.SectionID = p.SectionID
		a.Status = StatusWaitlisted
		a.WaitlistPosition = p.WaitlistPosition
		a.EnrolledAt = event.Timestamp

	case EventStudentPromoted:
		if a.Status != StatusWaitlisted {
			return fmt.Errorf("applying StudentPromoted: aggregate is %q, want %q", a.Status, StatusWaitlisted)
		}
		a.Status = StatusEnrolled
		a.WaitlistPosition = 0

	case EventStudentDropped:
		if a.Status != StatusEnrolled && a.Status != StatusWaitlisted {
			return fmt.Errorf("applying StudentDropped: aggregate is %q, not active", a.Status)
		}
		a.Status = StatusDropped
		a.WaitlistPosition = 0

	case EventEnrollmentCompleted:
		if a.Status != StatusEnrolled {
			return fmt.Errorf("applying EnrollmentCompleted: aggregate is %q, want %q", a.Status, StatusEnrolled)
		}
		a.Status = StatusCompleted

	default:
		return fmt.Errorf("applying unknown event type %q", event.Type)
	}

	a.Version++
	return nil
}

// raise builds a DomainEvent, applies it to mutate local state, and buffers
// it as uncommitted. Returns an error if the transition is invalid from the
// aggregate's current state.
func (a *Aggregate) raise(eventType EventType, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}
	event := DomainEvent{Type: eventType, Payload: body, Timestamp: now}
	if err := a.apply(event); err != nil {
		return err
	}
	a.uncommitted = append(a.uncommitted, event)
	return nil
}

// Enroll transitions (none) -> enrolled, emitting StudentEnrolled.
func (a *Aggregate) Enroll(now time.Time) error {
	if a.Status != StatusNone {
		return fmt.Errorf("Enroll: aggregate is %q, want none", a.Status)
	}
	return a.raise(EventStudentEnrolled, StudentEnrolledPayload{StudentID: a.StudentID, SectionID: a.SectionID}, now)
}

// Waitlist transitions (none) -> waitlisted at the given position, emitting
// StudentWaitlisted.
func (a *Aggregate) Waitlist(position int, now time.Time) error {
	if a.Status != StatusNone {
		return fmt.Errorf("Waitlist: aggregate is %q, want none", a.Status)
	}
	return a.raise(EventStudentWaitlisted, StudentWaitlistedPayload{
		StudentID: a.StudentID, SectionID: a.SectionID, WaitlistPosition: position,
	}, now)
}

// Promote transitions waitlisted -> enrolled, emitting StudentPromoted.
func (a *Aggregate) Promote(now time.Time) error {
	fromPosition := a.WaitlistPosition
	return a.raise(EventStudentPromoted, StudentPromotedPayload{FromWaitlistPosition: fromPosition}, now)
}

// Drop transitions enrolled or waitlisted -> dropped, emitting StudentDropped.
func (a *Aggregate) Drop(now time.Time) error {
	prior := a.Status
	return a.raise(EventStudentDropped, StudentDroppedPayload{PriorStatus: prior}, now)
}

// Complete transitions enrolled -> completed, emitting EnrollmentCompleted.
func (a *Aggregate) Complete(now time.Time) error {
	return a.raise(EventEnrollmentCompleted, EnrollmentCompletedPayload{}, now)
}

// StreamID returns the canonical event-store stream key for this aggregate.
func (a *Aggregate) StreamID() string {
	return StreamID(a.EnrollmentID)
}

// StreamID builds the canonical stream key for an enrollment aggregate.
func StreamID(enrollmentID uuid.UUID) string {
	return "enrollment-" + enrollmentID.String()
}

// Fold reconstructs an Aggregate's state by replaying ordered events on top
// of an optional starting snapshot state. It is the Fold function the
// event store's Replay expects.
func Fold(enrollmentID uuid.UUID, snapshotState json.RawMessage, snapshotVersion int64, events []DomainEvent) (*Aggregate, error) {
	a := &Aggregate{EnrollmentID: enrollmentID}
	if len(snapshotState) > 0 {
		if err := json.Unmarshal(snapshotState, a); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot state: %w", err)
		}
		a.Version = snapshotVersion
	}
	for _, e := range events {
		if err := a.apply(e); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Snapshot returns a JSON encoding of the aggregate's current state, for
// use with the event store's SaveSnapshot.
func (a *Aggregate) Snapshot() (json.RawMessage, error) {
	return json.Marshal(a)
}

package enrollment

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAggregate_EnrollTransitionsNoneToEnrolled(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	now := time.Now()

	if err := agg.Enroll(now); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if agg.Status != StatusEnrolled {
		t.Errorf("Status = %q, want enrolled", agg.Status)
	}
	if agg.Version != 1 {
		t.Errorf("Version = %d, want 1", agg.Version)
	}
	uncommitted := agg.Uncommitted()
	if len(uncommitted) != 1 || uncommitted[0].Type != EventStudentEnrolled {
		t.Fatalf("Uncommitted() = %+v, want one StudentEnrolled event", uncommitted)
	}
}

func TestAggregate_EnrollTwiceFails(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	now := time.Now()
	if err := agg.Enroll(now); err != nil {
		t.Fatalf("first Enroll() error = %v", err)
	}
	if err := agg.Enroll(now); err == nil {
		t.Fatal("second Enroll() on an already-enrolled aggregate should fail")
	}
}

func TestAggregate_WaitlistThenPromote(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	now := time.Now()

	if err := agg.Waitlist(3, now); err != nil {
		t.Fatalf("Waitlist() error = %v", err)
	}
	if agg.Status != StatusWaitlisted || agg.WaitlistPosition != 3 {
		t.Fatalf("after Waitlist(): status=%q position=%d", agg.Status, agg.WaitlistPosition)
	}

	if err := agg.Promote(now); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if agg.Status != StatusEnrolled {
		t.Errorf("Status after Promote() = %q, want enrolled", agg.Status)
	}
	if agg.WaitlistPosition != 0 {
		t.Errorf("WaitlistPosition after Promote() = %d, want 0", agg.WaitlistPosition)
	}
}

func TestAggregate_PromoteWithoutWaitlistFails(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	if err := agg.Promote(time.Now()); err == nil {
		t.Fatal("Promote() on a none-status aggregate should fail")
	}
}

func TestAggregate_DropFromEnrolledAndWaitlisted(t *testing.T) {
	now := time.Now()

	enrolled := NewAggregate("s1", "sec1")
	_ = enrolled.Enroll(now)
	if err := enrolled.Drop(now); err != nil {
		t.Fatalf("Drop() from enrolled error = %v", err)
	}
	if enrolled.Status != StatusDropped {
		t.Errorf("Status = %q, want dropped", enrolled.Status)
	}

	waitlisted := NewAggregate("s2", "sec1")
	_ = waitlisted.Waitlist(1, now)
	if err := waitlisted.Drop(now); err != nil {
		t.Fatalf("Drop() from waitlisted error = %v", err)
	}
	if waitlisted.Status != StatusDropped {
		t.Errorf("Status = %q, want dropped", waitlisted.Status)
	}
}

func TestAggregate_DropFromNoneFails(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	if err := agg.Drop(time.Now()); err == nil {
		t.Fatal("Drop() on a none-status aggregate should fail")
	}
}

func TestAggregate_CompleteRequiresEnrolled(t *testing.T) {
	now := time.Now()
	agg := NewAggregate("s1", "sec1")
	if err := agg.Complete(now); err == nil {
		t.Fatal("Complete() before Enroll() should fail")
	}

	_ = agg.Enroll(now)
	if err := agg.Complete(now); err != nil {
		t.Fatalf("Complete() after Enroll() error = %v", err)
	}
	if agg.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", agg.Status)
	}
}

func TestAggregate_MarkCommittedClearsBuffer(t *testing.T) {
	agg := NewAggregate("s1", "sec1")
	_ = agg.Enroll(time.Now())
	if len(agg.Uncommitted()) == 0 {
		t.Fatal("expected buffered events before MarkCommitted")
	}
	agg.MarkCommitted()
	if len(agg.Uncommitted()) != 0 {
		t.Errorf("Uncommitted() after MarkCommitted() = %v, want empty", agg.Uncommitted())
	}
}

// Fold applied to the events an aggregate raised must reproduce its exact
// live state.
func TestFold_ReconstructsStateFromEvents(t *testing.T) {
	now := time.Now()
	agg := NewAggregate("s1", "sec1")
	_ = agg.Enroll(now)
	_ = agg.Drop(now)

	events := agg.Uncommitted()
	replayed, err := Fold(agg.EnrollmentID, nil, 0, events)
	if err != nil {
		t.Fatalf("Fold() error = %v", err)
	}

	if replayed.Status != agg.Status {
		t.Errorf("replayed Status = %q, want %q", replayed.Status, agg.Status)
	}
	if replayed.Version != agg.Version {
		t.Errorf("replayed Version = %d, want %d", replayed.Version, agg.Version)
	}
	if replayed.StudentID != agg.StudentID || replayed.SectionID != agg.SectionID {
		t.Errorf("replayed identity mismatch: got (%s,%s), want (%s,%s)",
			replayed.StudentID, replayed.SectionID, agg.StudentID, agg.SectionID)
	}
}

func TestFold_ResumesFromSnapshot(t *testing.T) {
	now := time.Now()
	agg := NewAggregate("s1", "sec1")
	_ = agg.Waitlist(1, now)
	agg.MarkCommitted()

	snapshotState, err := agg.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	_ = agg.Promote(now)
	tailEvents := agg.Uncommitted()

	replayed, err := Fold(agg.EnrollmentID, snapshotState, 1, tailEvents)
	if err != nil {
		t.Fatalf("Fold() error = %v", err)
	}
	if replayed.Status != StatusEnrolled {
		t.Errorf("Status = %q, want enrolled", replayed.Status)
	}
	if replayed.Version != 2 {
		t.Errorf("Version = %d, want 2", replayed.Version)
	}
}

func TestStreamID_IsStableForAnEnrollmentID(t *testing.T) {
	id := uuid.New()
	agg := &Aggregate{EnrollmentID: id}
	want := "enrollment-" + id.String()
	if got := agg.StreamID(); got != want {
		t.Errorf("StreamID() = %q, want %q", got, want)
	}
	if got := StreamID(id); got != want {
		t.Errorf("StreamID(id) = %q, want %q", got, want)
	}
}

package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/campusorch/enrollcore/pkg/academic"
	"github.com/campusorch/enrollcore/pkg/policy"
)

// TestService_Enroll_CapacityRace drives a section with max_enrollment=1
// through 50 clients each attempting 20 distinct students' enrollments
// concurrently. Exactly one request must land enrolled, up to max_waitlist
// requests must land waitlisted at distinct positions 1..max_waitlist, and
// the rest must be rejected as SectionFull — with the section's final
// counters matching exactly, not approximately.
//
// This is the correctness test for TryIncrementEnrollment/TryIncrementWaitlist
// (pkg/academic): without their atomic ceiling check, two goroutines can both
// observe an open seat and both commit, which this test would catch as
// CurrentEnrollment > 1 or a duplicate waitlist position.
func TestService_Enroll_CapacityRace(t *testing.T) {
	const clients = 50
	const attemptsPerClient = 20
	const maxWaitlist = 10

	ac := newFakeAcademicStore()
	sectionID := uuid.New()
	seedBasicSection(ac, sectionID, "CS101", 1, maxWaitlist)

	students := make([]string, 0, clients*attemptsPerClient)
	for c := 0; c < clients; c++ {
		for a := 0; a < attemptsPerClient; a++ {
			studentID := fmt.Sprintf("stu-%d-%d", c, a)
			students = append(students, studentID)
			ac.students[studentID] = academic.Student{StudentID: studentID, AcademicStanding: policy.StandingGood}
		}
	}

	svc := newTestService(t, ac, newFakeEventStore(), nil)

	type result struct {
		status Status
		pos    int
		err    error
	}
	results := make([]result, len(students))

	var wg sync.WaitGroup
	for i, studentID := range students {
		wg.Add(1)
		go func(i int, studentID string) {
			defer wg.Done()
			outcome, err := svc.Enroll(context.Background(), studentID, sectionID.String(), "registrar", "2026SP")
			results[i] = result{status: outcome.Status, pos: outcome.WaitlistPosition, err: err}
		}(i, studentID)
	}
	wg.Wait()

	var enrolledCount, waitlistedCount, fullCount, otherErrCount int
	seenPositions := map[int]int{}
	for _, r := range results {
		switch {
		case r.err == nil && r.status == StatusEnrolled:
			enrolledCount++
		case r.err == nil && r.status == StatusWaitlisted:
			waitlistedCount++
			seenPositions[r.pos]++
		case errors.Is(r.err, ErrSectionFull):
			fullCount++
		default:
			otherErrCount++
			t.Errorf("unexpected result: status=%q err=%v", r.status, r.err)
		}
	}

	if enrolledCount != 1 {
		t.Errorf("enrolledCount = %d, want exactly 1", enrolledCount)
	}
	if waitlistedCount != maxWaitlist {
		t.Errorf("waitlistedCount = %d, want exactly %d", waitlistedCount, maxWaitlist)
	}
	wantFull := len(students) - 1 - maxWaitlist
	if fullCount != wantFull {
		t.Errorf("fullCount = %d, want %d", fullCount, wantFull)
	}
	if otherErrCount != 0 {
		t.Errorf("otherErrCount = %d, want 0", otherErrCount)
	}
	for pos := 1; pos <= maxWaitlist; pos++ {
		if seenPositions[pos] != 1 {
			t.Errorf("waitlist position %d claimed %d times, want exactly 1", pos, seenPositions[pos])
		}
	}

	sec := ac.sections[sectionID]
	if sec.CurrentEnrollment != 1 {
		t.Errorf("final CurrentEnrollment = %d, want 1", sec.CurrentEnrollment)
	}
	if sec.WaitlistSize != maxWaitlist {
		t.Errorf("final WaitlistSize = %d, want %d", sec.WaitlistSize, maxWaitlist)
	}
}

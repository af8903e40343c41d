package invariant

import (
	"testing"

	"github.com/campusorch/enrollcore/pkg/policy"
)

func days(d ...string) map[string]bool {
	m := make(map[string]bool, len(d))
	for _, x := range d {
		m[x] = true
	}
	return m
}

func TestCheckEnrollmentInvariant_TimeOverlap(t *testing.T) {
	m := NewMonitor()
	a := Section{SectionID: "A", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{"s1"}}
	b := Section{SectionID: "B", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 630, EndMin: 690}, Capacity: 30, Roster: []string{}}

	ok, _, violation := m.CheckEnrollmentInvariant("s1", b, []Section{a, b})
	if ok {
		t.Fatal("expected invariant violation for overlapping schedule")
	}
	if violation != TimeOverlap {
		t.Errorf("violation = %v, want TimeOverlap", violation)
	}
}

func TestCheckEnrollmentInvariant_CapacityExceeded(t *testing.T) {
	m := NewMonitor()
	full := Section{SectionID: "A", Capacity: 1, Roster: []string{"s1"}}

	ok, _, violation := m.CheckEnrollmentInvariant("s2", full, []Section{full})
	if ok {
		t.Fatal("expected invariant violation for full capacity")
	}
	if violation != CapacityExceeded {
		t.Errorf("violation = %v, want CapacityExceeded", violation)
	}
}

func TestCheckEnrollmentInvariant_DoubleEnrollment(t *testing.T) {
	m := NewMonitor()
	sec := Section{SectionID: "A", Capacity: 30, Roster: []string{"s1"}}

	ok, _, violation := m.CheckEnrollmentInvariant("s1", sec, []Section{sec})
	if ok {
		t.Fatal("expected invariant violation for duplicate roster entry")
	}
	if violation != DoubleEnrollment {
		t.Errorf("violation = %v, want DoubleEnrollment", violation)
	}
}

func TestCheckEnrollmentInvariant_Allowed(t *testing.T) {
	m := NewMonitor()
	a := Section{SectionID: "A", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{"s1"}}
	b := Section{SectionID: "B", Schedule: policy.Schedule{Days: days("Tue"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{}}

	ok, _, _ := m.CheckEnrollmentInvariant("s1", b, []Section{a, b})
	if !ok {
		t.Fatal("expected enrollment to preserve all invariants")
	}
}

func TestVerifyAllEnrollments_FindsAllViolationTypes(t *testing.T) {
	m := NewMonitor()
	overA := Section{SectionID: "A", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{"s1"}}
	overB := Section{SectionID: "B", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 630, EndMin: 690}, Capacity: 30, Roster: []string{"s1"}}
	overCap := Section{SectionID: "C", Capacity: 1, Roster: []string{"s2", "s3"}}
	dup := Section{SectionID: "D", Capacity: 30, Roster: []string{"s4", "s4"}}

	violations := m.VerifyAllEnrollments([]Section{overA, overB, overCap, dup})

	found := map[ViolationType]bool{}
	for _, v := range violations {
		found[v.Type] = true
	}
	for _, want := range []ViolationType{TimeOverlap, CapacityExceeded, DoubleEnrollment} {
		if !found[want] {
			t.Errorf("expected a %s violation, got: %+v", want, violations)
		}
	}
}

func TestVerifyAllEnrollments_CleanSetHasNoViolations(t *testing.T) {
	m := NewMonitor()
	a := Section{SectionID: "A", Schedule: policy.Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{"s1"}}
	b := Section{SectionID: "B", Schedule: policy.Schedule{Days: days("Tue"), StartMin: 600, EndMin: 660}, Capacity: 30, Roster: []string{"s1", "s2"}}

	violations := m.VerifyAllEnrollments([]Section{a, b})
	if len(violations) != 0 {
		t.Errorf("expected no violations, got: %+v", violations)
	}
}

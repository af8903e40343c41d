// Package invariant implements the runtime checker that can prove or
// disprove the enrollment core's global correctness invariants: no student
// is active in two overlapping sections, no section exceeds its capacity,
// and no student appears twice in a roster. It is the canonical test
// oracle for the policy engine — any enrollment the engine would allow
// must also be invariant-preserving.
package invariant

import "github.com/campusorch/enrollcore/pkg/policy"

// ViolationType enumerates the ways a proposed enrollment can break a
// global invariant.
type ViolationType string

const (
	TimeOverlap      ViolationType = "TIME_OVERLAP"
	CapacityExceeded ViolationType = "CAPACITY_EXCEEDED"
	DoubleEnrollment ViolationType = "DOUBLE_ENROLLMENT"
)

// Section is the monitor's view of one section: its schedule, its capacity,
// and its currently-active roster of student IDs.
type Section struct {
	SectionID string
	Schedule  policy.Schedule
	Capacity  int
	Roster    []string
}

// Violation describes one broken invariant, identifying the students and
// sections involved.
type Violation struct {
	Type     ViolationType
	Reason   string
	Students []string
	Sections []string
}

// Monitor checks the invariants against a snapshot of the section set. It
// holds no state of its own; callers pass the current sections on every call.
type Monitor struct{}

// NewMonitor builds a Monitor. It carries no configuration: the invariants
// it checks are fixed, not tunable.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// CheckEnrollmentInvariant decides whether enrolling studentID into section
// would preserve the no-time-overlap, capacity, and no-double-enrollment
// invariants given the rest of the section set.
func (m *Monitor) CheckEnrollmentInvariant(studentID string, section Section, sections []Section) (ok bool, reason string, violation ViolationType) {
	for _, s := range sections {
		if s.SectionID == section.SectionID {
			continue
		}
		if !contains(s.Roster, studentID) {
			continue
		}
		if s.Schedule.Overlaps(section.Schedule) {
			return false, "student already active in a section with an overlapping schedule", TimeOverlap
		}
	}

	if len(section.Roster) >= section.Capacity {
		return false, "section is at capacity", CapacityExceeded
	}

	if contains(section.Roster, studentID) {
		return false, "student already appears in this section's roster", DoubleEnrollment
	}

	return true, "", ""
}

// VerifyAllEnrollments scans every pair of sections and every student
// pairing and returns every invariant violation found across the whole set:
// capacity and double-enrollment per section, time overlap pairwise across
// sections sharing a student.
func (m *Monitor) VerifyAllEnrollments(sections []Section) []Violation {
	var violations []Violation

	for _, s := range sections {
		if len(s.Roster) > s.Capacity {
			violations = append(violations, Violation{
				Type:     CapacityExceeded,
				Reason:   "roster exceeds section capacity",
				Sections: []string{s.SectionID},
			})
		}

		seen := make(map[string]bool, len(s.Roster))
		for _, studentID := range s.Roster {
			if seen[studentID] {
				violations = append(violations, Violation{
					Type:     DoubleEnrollment,
					Reason:   "student appears more than once in section roster",
					Students: []string{studentID},
					Sections: []string{s.SectionID},
				})
				continue
			}
			seen[studentID] = true
		}
	}

	for i := range sections {
		for j := i + 1; j < len(sections); j++ {
			a, b := sections[i], sections[j]
			if !a.Schedule.Overlaps(b.Schedule) {
				continue
			}
			for _, studentID := range a.Roster {
				if contains(b.Roster, studentID) {
					violations = append(violations, Violation{
						Type:     TimeOverlap,
						Reason:   "student simultaneously active in two overlapping sections",
						Students: []string{studentID},
						Sections: []string{a.SectionID, b.SectionID},
					})
				}
			}
		}
	}

	return violations
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

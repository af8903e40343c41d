package policy

import (
	"reflect"
	"testing"
)

func days(d ...string) map[string]bool {
	m := make(map[string]bool, len(d))
	for _, x := range d {
		m[x] = true
	}
	return m
}

func TestEngine_PrereqsMissing(t *testing.T) {
	ctx := Context{
		CoursePrerequisites:     []string{"CS-101", "MATH-100"},
		StudentCompletedCourses: map[string]bool{"CS-101": true},
		SectionMaxEnrollment:    30,
		MaxCreditsPerSemester:   18,
	}

	result := DefaultEngine().Evaluate(ctx)
	if result.Allowed {
		t.Fatal("expected denial for missing prerequisite")
	}
	if !reflect.DeepEqual(result.ViolatedRules, []string{"prerequisite_requirement"}) {
		t.Errorf("ViolatedRules = %v, want [prerequisite_requirement]", result.ViolatedRules)
	}
	missing, _ := result.Metadata["missing_prerequisites"].([]string)
	if !reflect.DeepEqual(missing, []string{"MATH-100"}) {
		t.Errorf("missing_prerequisites = %v, want [MATH-100]", missing)
	}
}

func TestEngine_TimeConflict(t *testing.T) {
	existingA := Schedule{Days: days("Mon", "Wed"), StartMin: 10 * 60, EndMin: 11 * 60}

	base := Context{
		StudentCompletedCourses: map[string]bool{},
		SectionMaxEnrollment:    30,
		MaxCreditsPerSemester:   18,
		StudentCurrentSchedule:  []Schedule{existingA},
	}

	sectionB := base
	sectionB.SectionSchedule = Schedule{Days: days("Mon"), StartMin: 10*60 + 30, EndMin: 12 * 60}
	resultB := DefaultEngine().Evaluate(sectionB)
	if resultB.Allowed {
		t.Fatal("expected denial: section B overlaps section A on Monday")
	}
	if !reflect.DeepEqual(resultB.ViolatedRules, []string{"no_time_conflict"}) {
		t.Errorf("ViolatedRules = %v, want [no_time_conflict]", resultB.ViolatedRules)
	}

	sectionC := base
	sectionC.SectionSchedule = Schedule{Days: days("Tue"), StartMin: 10 * 60, EndMin: 11 * 60}
	resultC := DefaultEngine().Evaluate(sectionC)
	if !resultC.Allowed {
		t.Fatalf("expected section C (Tuesday) to be allowed, got denial: %+v", resultC)
	}
}

func TestEngine_EvaluationOrderSurfacesFirstFailure(t *testing.T) {
	// Both Prerequisite and Capacity would fail; Prerequisite is cheaper and
	// first in the fixed order, so its reason must be the one surfaced.
	ctx := Context{
		CoursePrerequisites:     []string{"CS-101"},
		StudentCompletedCourses: map[string]bool{},
		SectionEnrollment:       30,
		SectionMaxEnrollment:    30,
	}
	result := DefaultEngine().Evaluate(ctx)
	if result.Allowed {
		t.Fatal("expected denial")
	}
	if result.ViolatedRules[0] != "prerequisite_requirement" {
		t.Errorf("expected prerequisite_requirement to surface first, got %v", result.ViolatedRules)
	}
}

func TestEngine_CreditLimit(t *testing.T) {
	ctx := Context{
		SectionMaxEnrollment:  30,
		MaxCreditsPerSemester: 18,
		StudentCurrentCredits: 16,
		CourseCredits:         4,
	}
	result := DefaultEngine().Evaluate(ctx)
	if result.Allowed {
		t.Fatal("expected denial: 16+4 > 18")
	}
	if result.ViolatedRules[0] != "credit_limit" {
		t.Errorf("expected credit_limit, got %v", result.ViolatedRules)
	}
}

func TestEngine_SuspendedDenied_ProbationAllowedWithWarning(t *testing.T) {
	base := Context{SectionMaxEnrollment: 30, MaxCreditsPerSemester: 18}

	suspended := base
	suspended.StudentAcademicStanding = StandingSuspended
	if DefaultEngine().Evaluate(suspended).Allowed {
		t.Error("expected suspended student to be denied")
	}

	probation := base
	probation.StudentAcademicStanding = StandingProbation
	result := DefaultEngine().Evaluate(probation)
	if !result.Allowed {
		t.Fatal("expected probation student to be allowed")
	}
	if _, ok := result.Metadata["academic_standing_warning"]; !ok {
		t.Error("expected a probation warning in metadata")
	}
}

// Re-evaluating on an unchanged context must yield an equal Result.
func TestEngine_Idempotent(t *testing.T) {
	ctx := Context{
		CoursePrerequisites:     []string{"CS-101"},
		StudentCompletedCourses: map[string]bool{"CS-101": true},
		SectionMaxEnrollment:    30,
		MaxCreditsPerSemester:   18,
		StudentAcademicStanding: StandingGood,
	}
	engine := DefaultEngine()
	r1 := engine.Evaluate(ctx)
	r2 := engine.Evaluate(ctx)
	if !reflect.DeepEqual(r1, r2) {
		t.Errorf("expected idempotent evaluation, got %+v != %+v", r1, r2)
	}
}

func TestSchedule_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Schedule
		want bool
	}{
		{"same day overlapping", Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Schedule{Days: days("Mon"), StartMin: 630, EndMin: 690}, true},
		{"same day adjacent, no overlap", Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Schedule{Days: days("Mon"), StartMin: 660, EndMin: 720}, false},
		{"different days", Schedule{Days: days("Mon"), StartMin: 600, EndMin: 660}, Schedule{Days: days("Tue"), StartMin: 600, EndMin: 660}, false},
		{"shared day among several, overlapping", Schedule{Days: days("Mon", "Wed"), StartMin: 600, EndMin: 660}, Schedule{Days: days("Wed", "Fri"), StartMin: 630, EndMin: 690}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

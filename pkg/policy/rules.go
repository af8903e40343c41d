package policy

// PrerequisitePolicy requires course_prerequisites ⊆ student_completed_courses.
type PrerequisitePolicy struct{}

func (PrerequisitePolicy) Name() string { return "prerequisite_requirement" }

func (p PrerequisitePolicy) Evaluate(ctx Context) Result {
	var missing []string
	for _, req := range ctx.CoursePrerequisites {
		if !ctx.StudentCompletedCourses[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return Result{
			Allowed:       false,
			Reason:        "missing required prerequisites",
			ViolatedRules: []string{p.Name()},
			Metadata:      map[string]any{"missing_prerequisites": missing},
		}
	}
	return Result{Allowed: true}
}

// CapacityPolicy allows only if the section has an open seat. Waitlist
// handling is the orchestrator's responsibility, not this policy's.
type CapacityPolicy struct{}

func (CapacityPolicy) Name() string { return "capacity_limit" }

func (p CapacityPolicy) Evaluate(ctx Context) Result {
	if ctx.SectionEnrollment >= ctx.SectionMaxEnrollment {
		return Result{
			Allowed:       false,
			Reason:        "section has reached max enrollment",
			ViolatedRules: []string{p.Name()},
			Metadata: map[string]any{
				"current_enrollment": ctx.SectionEnrollment,
				"max_enrollment":     ctx.SectionMaxEnrollment,
			},
		}
	}
	return Result{Allowed: true}
}

// TimeConflictPolicy denies if the target section's schedule overlaps any
// section in the student's current-semester schedule.
type TimeConflictPolicy struct{}

func (TimeConflictPolicy) Name() string { return "no_time_conflict" }

func (p TimeConflictPolicy) Evaluate(ctx Context) Result {
	for _, existing := range ctx.StudentCurrentSchedule {
		if ctx.SectionSchedule.Overlaps(existing) {
			return Result{
				Allowed:       false,
				Reason:        "section schedule conflicts with an existing enrollment",
				ViolatedRules: []string{p.Name()},
			}
		}
	}
	return Result{Allowed: true}
}

// CreditLimitPolicy denies if adding the course would exceed the student's
// max credit ceiling for the semester (default 18).
type CreditLimitPolicy struct{}

func (CreditLimitPolicy) Name() string { return "credit_limit" }

func (p CreditLimitPolicy) Evaluate(ctx Context) Result {
	maxCredits := ctx.MaxCreditsPerSemester
	if maxCredits == 0 {
		maxCredits = 18
	}
	if ctx.StudentCurrentCredits+ctx.CourseCredits > maxCredits {
		return Result{
			Allowed:       false,
			Reason:        "enrolling would exceed the maximum credits per semester",
			ViolatedRules: []string{p.Name()},
			Metadata: map[string]any{
				"current_credits": ctx.StudentCurrentCredits,
				"course_credits":  ctx.CourseCredits,
				"max_credits":     maxCredits,
			},
		}
	}
	return Result{Allowed: true}
}

// AcademicStandingPolicy denies students in suspended standing outright and
// allows probation with a non-fatal warning surfaced in metadata.
type AcademicStandingPolicy struct{}

func (AcademicStandingPolicy) Name() string { return "academic_standing" }

func (p AcademicStandingPolicy) Evaluate(ctx Context) Result {
	switch ctx.StudentAcademicStanding {
	case StandingSuspended:
		return Result{
			Allowed:       false,
			Reason:        "student is suspended",
			ViolatedRules: []string{p.Name()},
		}
	case StandingProbation:
		return Result{
			Allowed:  true,
			Metadata: map[string]any{"academic_standing_warning": "student is on probation"},
		}
	default:
		return Result{Allowed: true}
	}
}

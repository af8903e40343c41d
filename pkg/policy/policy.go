// Package policy implements the ordered, short-circuiting enrollment policy
// engine. Policies are pure predicates over a read-only Context; they never
// perform I/O, so adding a policy is an engine configuration change, not a
// schema change.
package policy

// Context is the typed, read-only snapshot of everything a policy might
// need, gathered once by the orchestrator per request. Policies consume it
// by field access, not by string keys.
type Context struct {
	StudentID string
	SectionID string

	StudentCompletedCourses map[string]bool
	CourseCode              string
	CoursePrerequisites     []string
	CourseCredits           int

	SectionSchedule      Schedule
	SectionEnrollment    int
	SectionMaxEnrollment int

	StudentCurrentSchedule []Schedule
	StudentCurrentCredits  int
	MaxCreditsPerSemester  int

	StudentAcademicStanding string
}

// Schedule is a section's meeting pattern: a set of days plus a single
// [start, end) interval, in minutes since midnight, local semester time.
// Callers normalize timezones before this layer.
type Schedule struct {
	Days     map[string]bool
	StartMin int
	EndMin   int
}

// Overlaps reports whether two schedules conflict: their day sets intersect
// and their minute intervals overlap on an intersecting day. Intervals
// [a,b) and [c,d) overlap iff a < d && c < b.
func (s Schedule) Overlaps(other Schedule) bool {
	daysIntersect := false
	for d := range s.Days {
		if other.Days[d] {
			daysIntersect = true
			break
		}
	}
	if !daysIntersect {
		return false
	}
	return s.StartMin < other.EndMin && other.StartMin < s.EndMin
}

// AcademicStanding values recognized by the AcademicStanding policy.
const (
	StandingGood      = "good"
	StandingWarning   = "warning"
	StandingProbation = "probation"
	StandingSuspended = "suspended"
)

// Result is the outcome of evaluating one or more policies.
type Result struct {
	Allowed       bool
	Reason        string
	ViolatedRules []string
	Metadata      map[string]any
}

// Policy is a pure predicate over a Context. Implementations must not
// perform I/O or depend on mutable package state.
type Policy interface {
	// Name identifies the policy for the violated_rules list and metrics.
	Name() string
	Evaluate(ctx Context) Result
}

// Engine composes an ordered list of policies and evaluates them with
// short-circuit semantics: the first failing policy's Result is surfaced
// as the denial, and evaluation stops there.
type Engine struct {
	policies []Policy
}

// NewEngine builds an Engine with the given policies, evaluated in the
// order passed. DefaultEngine returns the fixed, cheapest-first ordering;
// callers should prefer it unless deliberately testing a subset.
func NewEngine(policies ...Policy) *Engine {
	return &Engine{policies: policies}
}

// DefaultEngine returns the engine wired with the five built-in policies in
// their fixed, cheapest-first evaluation order. The surfaced denial reason
// must match the first failure, so this order is semantically load-bearing
// and must not be reordered.
func DefaultEngine() *Engine {
	return NewEngine(
		&PrerequisitePolicy{},
		&CapacityPolicy{},
		&TimeConflictPolicy{},
		&CreditLimitPolicy{},
		&AcademicStandingPolicy{},
	)
}

// Evaluate runs policies in order, stopping at (and returning) the first
// denial. If every policy allows, it returns an allowed Result whose
// Metadata merges every policy's metadata (useful for non-fatal warnings,
// e.g. probation standing).
func (e *Engine) Evaluate(ctx Context) Result {
	merged := map[string]any{}
	for _, p := range e.policies {
		r := p.Evaluate(ctx)
		for k, v := range r.Metadata {
			merged[k] = v
		}
		if !r.Allowed {
			r.Metadata = merged
			return r
		}
	}
	return Result{Allowed: true, Metadata: merged}
}

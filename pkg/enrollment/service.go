package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campusorch/enrollcore/internal/telemetry"
	"github.com/campusorch/enrollcore/pkg/academic"
	"github.com/campusorch/enrollcore/pkg/audit"
	"github.com/campusorch/enrollcore/pkg/eventstore"
	"github.com/campusorch/enrollcore/pkg/lockmgr"
	"github.com/campusorch/enrollcore/pkg/policy"
)

// Outcome is the successful result of an Enroll or Drop call: the Ok member
// of the {Ok | Denied | Err} result sum. Denied is carried by
// *PolicyDeniedError; Err is any other returned error.
type Outcome struct {
	EnrollmentID     uuid.UUID
	Status           Status
	WaitlistPosition int
}

// Config holds the orchestrator's tunables.
type Config struct {
	MaxCreditsPerSemester int
	DefaultWaitlistSize   int
	SnapshotEveryNEvents  int
	LockDefaultTTL        time.Duration
	ConcurrencyRetryLimit uint
}

// eventStore is the subset of *eventstore.Store the orchestrator depends on.
// Declaring it here lets tests substitute a fake without a database.
type eventStore interface {
	AppendBatch(ctx context.Context, streamID string, events []eventstore.NewEvent, expectedVersion *int64) ([]eventstore.Envelope, error)
	SaveSnapshot(ctx context.Context, snap eventstore.Snapshot) error
	Replay(ctx context.Context, streamID, aggregateID string, fold eventstore.Fold) (json.RawMessage, int64, error)
}

// auditChain is the subset of *audit.Chain the orchestrator depends on.
type auditChain interface {
	Append(ctx context.Context, p audit.NewEntryParams, now time.Time) (audit.Entry, error)
}

// leaseManager is the subset of *lockmgr.Manager the orchestrator depends on.
type leaseManager interface {
	Acquire(ctx context.Context, resourceID, owner string, ttl, waitTimeout time.Duration) (*lockmgr.Lease, error)
	Release(ctx context.Context, resourceID, owner string) error
}

// Service is the enrollment orchestrator: it loads context, invokes the
// policy engine, mutates the aggregate, persists events, and updates the
// read model and audit chain.
type Service struct {
	academic academic.Store
	events   eventStore
	policies *policy.Engine
	locks    leaseManager
	auditLog auditChain
	logger   *slog.Logger
	cfg      Config

	now func() time.Time
}

// NewService wires the orchestrator from its dependencies, all injected as
// process-scoped services. locks may be nil to disable the optional
// pessimistic fast path.
func NewService(academicStore academic.Store, events eventStore, policies *policy.Engine, locks leaseManager, auditLog auditChain, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		academic: academicStore,
		events:   events,
		policies: policies,
		locks:    locks,
		auditLog: auditLog,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Enroll admits studentID into sectionID, waitlists them if the section is
// full but the waitlist has room, or returns a typed error. The event-store
// append and the read-model upsert are separate statements, so a crash
// between them can leave the read model stale until Reconcile folds the
// stream; callers needing the authoritative state fold the event log.
func (s *Service) Enroll(ctx context.Context, studentID, sectionID, actorID, semester string) (Outcome, error) {
	sectionUUID, err := uuid.Parse(sectionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: invalid section id: %v", ErrNotFound, err)
	}

	section, err := s.academic.GetSection(ctx, sectionUUID)
	if err != nil {
		return Outcome{}, s.notFound(err, "section")
	}
	course, err := s.academic.GetCourse(ctx, section.CourseCode)
	if err != nil {
		return Outcome{}, s.notFound(err, "course")
	}
	student, err := s.academic.GetStudent(ctx, studentID)
	if err != nil {
		return Outcome{}, s.notFound(err, "student")
	}

	existing, err := s.academic.GetActiveEnrollment(ctx, studentID, sectionUUID)
	if err != nil {
		return Outcome{}, fmt.Errorf("enrollment: checking existing enrollment: %w", err)
	}
	if existing != nil {
		return Outcome{}, ErrAlreadyEnrolled
	}

	ctxData, err := s.buildContext(ctx, studentID, section, course, student, semester)
	if err != nil {
		return Outcome{}, fmt.Errorf("enrollment: building policy context: %w", err)
	}

	result := s.policies.Evaluate(ctxData)
	if !result.Allowed && capacityOnlyDenial(result) {
		// A full section is not terminal for the request: the student may
		// still be waitlist-eligible. The engine short-circuited at the
		// capacity rule, so re-evaluate the remaining rules as if a seat
		// were open; the atomic reservation below decides the real outcome
		// between a just-freed seat, the waitlist, and SectionFull.
		open := ctxData
		open.SectionEnrollment = 0
		open.SectionMaxEnrollment = 1
		result = s.policies.Evaluate(open)
	}
	if !result.Allowed {
		telemetry.PolicyDenialsTotal.WithLabelValues(result.ViolatedRules[0]).Inc()
		return Outcome{}, NewPolicyDeniedError(result)
	}

	resourceID := lockmgr.SectionResourceID(section.SectionID.String())
	owner := lockmgr.NewOwnerToken()
	if s.locks != nil {
		lockStart := time.Now()
		var lease *lockmgr.Lease
		lockErr := retry.Do(
			func() error {
				l, acquireErr := s.locks.Acquire(ctx, resourceID, owner, s.cfg.lockTTL(), s.cfg.lockTTL())
				lease = l
				return acquireErr
			},
			retry.Attempts(s.retryAttempts()),
			retry.RetryIf(func(err error) bool { return errors.Is(err, lockmgr.ErrLockTimeout) }),
			retry.LastErrorOnly(true),
		)
		telemetry.LockWaitDuration.WithLabelValues("section").Observe(time.Since(lockStart).Seconds())
		if lockErr != nil {
			if errors.Is(lockErr, lockmgr.ErrLockTimeout) {
				return Outcome{}, ErrLockTimeout
			}
			s.logger.Warn("lock acquisition failed, proceeding on version fencing alone", "resource", resourceID, "error", lockErr)
		} else {
			defer func() {
				if releaseErr := s.locks.Release(context.WithoutCancel(ctx), resourceID, lease.Owner); releaseErr != nil {
					s.logger.Warn("releasing section lease", "resource", resourceID, "error", releaseErr)
				}
			}()
		}
	}

	var outcome Outcome
	retryErr := retry.Do(
		func() error {
			o, innerErr := s.attemptEnroll(ctx, studentID, section, actorID)
			if innerErr != nil {
				return innerErr
			}
			outcome = o
			return nil
		},
		retry.Attempts(s.retryAttempts()),
		retry.RetryIf(isConcurrencyError),
		retry.LastErrorOnly(true),
	)
	if retryErr != nil {
		return Outcome{}, s.conflictOrErr(retryErr)
	}

	return outcome, nil
}

// attemptEnroll performs a single (non-retried) pass of the reserve-seat,
// mutate-aggregate, append, project, audit sequence. The seat/waitlist
// reservation is an atomic conditional increment rather than a separate
// read-then-branch-then-write: TryIncrementEnrollment/TryIncrementWaitlist
// check the capacity ceiling and apply the increment as one database
// operation, so two concurrent callers racing for the last seat cannot both
// observe room and both commit, without relying on the optional section
// lease.
func (s *Service) attemptEnroll(ctx context.Context, studentID string, section academic.Section, actorID string) (Outcome, error) {
	agg := NewAggregate(studentID, section.SectionID.String())
	now := s.now()

	var counterField academic.CounterField
	var waitlistPosition int

	enrolledOK, err := s.academic.TryIncrementEnrollment(ctx, section.SectionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("enrollment: reserving a seat: %w", err)
	}
	switch {
	case enrolledOK:
		counterField = academic.CounterCurrentEnrollment
		if err := agg.Enroll(now); err != nil {
			_ = s.academic.IncrementSectionCounter(ctx, section.SectionID, counterField, -1)
			return Outcome{}, err
		}
	default:
		waitlistedOK, position, err := s.academic.TryIncrementWaitlist(ctx, section.SectionID)
		if err != nil {
			return Outcome{}, fmt.Errorf("enrollment: reserving a waitlist slot: %w", err)
		}
		if !waitlistedOK {
			return Outcome{}, ErrSectionFull
		}
		waitlistPosition = position
		counterField = academic.CounterWaitlistSize
		if err := agg.Waitlist(waitlistPosition, now); err != nil {
			_ = s.academic.IncrementSectionCounter(ctx, section.SectionID, counterField, -1)
			return Outcome{}, err
		}
	}

	streamID := agg.StreamID()
	expectedVersion := int64(0)
	events := make([]eventstore.NewEvent, 0, len(agg.Uncommitted()))
	for _, e := range agg.Uncommitted() {
		events = append(events, eventstore.NewEvent{
			EventType:   string(e.Type),
			AggregateID: agg.EnrollmentID.String(),
			Payload:     e.Payload,
		})
	}

	if _, err := s.events.AppendBatch(ctx, streamID, events, &expectedVersion); err != nil {
		if rollbackErr := s.academic.IncrementSectionCounter(ctx, section.SectionID, counterField, -1); rollbackErr != nil {
			s.logger.Error("rolling back reserved seat after failed append", "section_id", section.SectionID, "error", rollbackErr)
		}
		return Outcome{}, err
	}
	agg.MarkCommitted()

	var posPtr *int
	if waitlistPosition > 0 {
		posPtr = &waitlistPosition
	}
	if err := s.academic.UpsertEnrollment(ctx, academic.EnrollmentRow{
		EnrollmentID:     agg.EnrollmentID,
		StudentID:        agg.StudentID,
		SectionID:        section.SectionID,
		Status:           string(agg.Status),
		WaitlistPosition: posPtr,
		EnrolledAt:       agg.EnrolledAt,
		Version:          agg.Version,
	}); err != nil {
		if rollbackErr := s.academic.IncrementSectionCounter(ctx, section.SectionID, counterField, -1); rollbackErr != nil {
			s.logger.Error("rolling back reserved seat after read-model conflict", "section_id", section.SectionID, "error", rollbackErr)
		}
		if errors.Is(err, academic.ErrActiveEnrollmentExists) {
			// The event this aggregate just appended is left orphaned in its
			// own stream: harmless, since nothing will ever read a stream
			// whose enrollment_id has no read-model row, and replaying it
			// would simply reconstruct the enrolled/waitlisted state this
			// request lost the race to claim.
			return Outcome{}, ErrAlreadyEnrolled
		}
		return Outcome{}, fmt.Errorf("enrollment: updating read model: %w", err)
	}

	if err := s.maybeSnapshot(ctx, agg); err != nil {
		s.logger.Warn("snapshot write failed, continuing without it", "enrollment_id", agg.EnrollmentID, "error", err)
	}

	action := "enroll"
	if agg.Status == StatusWaitlisted {
		action = "waitlist"
	}
	if _, err := s.auditLog.Append(ctx, audit.NewEntryParams{
		Action:       action,
		ResourceType: "enrollment",
		ResourceID:   agg.EnrollmentID.String(),
		ActorID:      actorID,
		Metadata: map[string]any{
			"student_id": studentID,
			"section_id": section.SectionID.String(),
			"status":     string(agg.Status),
		},
	}, now); err != nil {
		telemetry.AuditAppendFailuresTotal.Inc()
		return Outcome{}, fmt.Errorf("%w: %v", ErrAuditFailure, err)
	}

	telemetry.EnrollmentOutcomesTotal.WithLabelValues(string(agg.Status)).Inc()

	return Outcome{EnrollmentID: agg.EnrollmentID, Status: agg.Status, WaitlistPosition: waitlistPosition}, nil
}

// Drop releases an active enrollment. Dropping an enrolled record frees a
// seat and triggers promotion of the position-1 waitlisted record in the
// same section; dropping a waitlisted record renumbers the entries behind
// it. Version conflicts are retried with a fresh read of the row.
func (s *Service) Drop(ctx context.Context, enrollmentID uuid.UUID, actorID string) (Outcome, error) {
	var outcome Outcome
	retryErr := retry.Do(
		func() error {
			o, innerErr := s.attemptDrop(ctx, enrollmentID, actorID)
			if innerErr != nil {
				return innerErr
			}
			outcome = o
			return nil
		},
		retry.Attempts(s.retryAttempts()),
		retry.RetryIf(isConcurrencyError),
		retry.LastErrorOnly(true),
	)
	if retryErr != nil {
		return Outcome{}, s.conflictOrErr(retryErr)
	}
	return outcome, nil
}

func (s *Service) attemptDrop(ctx context.Context, enrollmentID uuid.UUID, actorID string) (Outcome, error) {
	row, err := s.academic.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Outcome{}, s.notFound(err, "enrollment")
	}
	if Status(row.Status) != StatusEnrolled && Status(row.Status) != StatusWaitlisted {
		return Outcome{}, fmt.Errorf("enrollment: %s is not active (status=%s)", enrollmentID, row.Status)
	}

	agg := &Aggregate{
		EnrollmentID: row.EnrollmentID,
		StudentID:    row.StudentID,
		SectionID:    row.SectionID.String(),
		Status:       Status(row.Status),
		Version:      row.Version,
	}
	wasEnrolled := agg.Status == StatusEnrolled
	now := s.now()
	if err := agg.Drop(now); err != nil {
		return Outcome{}, err
	}

	streamID := agg.StreamID()
	expectedVersion := row.Version
	events := make([]eventstore.NewEvent, 0, len(agg.Uncommitted()))
	for _, e := range agg.Uncommitted() {
		events = append(events, eventstore.NewEvent{EventType: string(e.Type), AggregateID: agg.EnrollmentID.String(), Payload: e.Payload})
	}
	if _, err := s.events.AppendBatch(ctx, streamID, events, &expectedVersion); err != nil {
		return Outcome{}, err
	}
	agg.MarkCommitted()

	counterField := academic.CounterCurrentEnrollment
	if !wasEnrolled {
		counterField = academic.CounterWaitlistSize
	}
	if err := s.academic.IncrementSectionCounter(ctx, row.SectionID, counterField, -1); err != nil {
		return Outcome{}, fmt.Errorf("enrollment: decrementing section counter: %w", err)
	}
	if err := s.academic.UpsertEnrollment(ctx, academic.EnrollmentRow{
		EnrollmentID: agg.EnrollmentID, StudentID: agg.StudentID, SectionID: row.SectionID,
		Status: string(agg.Status), EnrolledAt: row.EnrolledAt, Version: agg.Version,
	}); err != nil {
		return Outcome{}, fmt.Errorf("enrollment: updating read model: %w", err)
	}

	if !wasEnrolled && row.WaitlistPosition != nil {
		// A waitlisted drop vacates its position; everyone behind shifts up.
		if err := s.academic.DecrementWaitlistPositions(ctx, row.SectionID, *row.WaitlistPosition); err != nil {
			return Outcome{}, fmt.Errorf("enrollment: renumbering waitlist: %w", err)
		}
	}

	if _, err := s.auditLog.Append(ctx, audit.NewEntryParams{
		Action: "drop", ResourceType: "enrollment", ResourceID: agg.EnrollmentID.String(), ActorID: actorID,
		Metadata: map[string]any{"student_id": agg.StudentID, "section_id": row.SectionID.String()},
	}, now); err != nil {
		telemetry.AuditAppendFailuresTotal.Inc()
		return Outcome{}, fmt.Errorf("%w: %v", ErrAuditFailure, err)
	}

	if wasEnrolled {
		promoteErr := retry.Do(
			func() error { return s.promoteNextWaitlisted(ctx, row.SectionID, actorID) },
			retry.Attempts(s.retryAttempts()),
			retry.RetryIf(isConcurrencyError),
			retry.LastErrorOnly(true),
		)
		if promoteErr != nil {
			s.logger.Error("waitlist promotion failed after drop", "section_id", row.SectionID, "error", promoteErr)
		}
	}

	telemetry.EnrollmentOutcomesTotal.WithLabelValues("dropped").Inc()
	return Outcome{EnrollmentID: agg.EnrollmentID, Status: agg.Status}, nil
}

// promoteNextWaitlisted promotes the position-1 waitlisted enrollment in a
// section into the just-freed seat and renumbers the remaining waitlist.
// The seat is re-reserved through the same atomic conditional increment the
// enroll path uses, so a concurrent enroller who already retook it simply
// leaves the candidate waitlisted. Net effect of a drop-with-promotion:
// current_enrollment is unchanged and waitlist_size decreases by one.
func (s *Service) promoteNextWaitlisted(ctx context.Context, sectionID uuid.UUID, actorID string) error {
	candidate, err := s.academic.PromoteWaitlistCandidate(ctx, sectionID)
	if err != nil {
		return fmt.Errorf("finding waitlist candidate: %w", err)
	}
	if candidate == nil {
		return nil
	}

	seatOK, err := s.academic.TryIncrementEnrollment(ctx, sectionID)
	if err != nil {
		return fmt.Errorf("reserving the freed seat: %w", err)
	}
	if !seatOK {
		return nil
	}

	agg := &Aggregate{
		EnrollmentID:     candidate.EnrollmentID,
		StudentID:        candidate.StudentID,
		SectionID:        candidate.SectionID.String(),
		Status:           Status(candidate.Status),
		WaitlistPosition: 1,
		Version:          candidate.Version,
	}
	now := s.now()
	if err := agg.Promote(now); err != nil {
		_ = s.academic.IncrementSectionCounter(ctx, sectionID, academic.CounterCurrentEnrollment, -1)
		return err
	}

	streamID := agg.StreamID()
	expectedVersion := candidate.Version
	events := make([]eventstore.NewEvent, 0, 1)
	for _, e := range agg.Uncommitted() {
		events = append(events, eventstore.NewEvent{EventType: string(e.Type), AggregateID: agg.EnrollmentID.String(), Payload: e.Payload})
	}
	if _, err := s.events.AppendBatch(ctx, streamID, events, &expectedVersion); err != nil {
		if rollbackErr := s.academic.IncrementSectionCounter(ctx, sectionID, academic.CounterCurrentEnrollment, -1); rollbackErr != nil {
			s.logger.Error("rolling back promoted seat after failed append", "section_id", sectionID, "error", rollbackErr)
		}
		return fmt.Errorf("appending promotion event: %w", err)
	}
	agg.MarkCommitted()

	if err := s.academic.UpsertEnrollment(ctx, academic.EnrollmentRow{
		EnrollmentID: agg.EnrollmentID, StudentID: agg.StudentID, SectionID: candidate.SectionID,
		Status: string(agg.Status), EnrolledAt: candidate.EnrolledAt, Version: agg.Version,
	}); err != nil {
		return fmt.Errorf("updating promoted read model: %w", err)
	}
	if err := s.academic.IncrementSectionCounter(ctx, sectionID, academic.CounterWaitlistSize, -1); err != nil {
		return fmt.Errorf("decrementing waitlist size: %w", err)
	}
	if err := s.academic.DecrementWaitlistPositions(ctx, sectionID, 1); err != nil {
		return fmt.Errorf("renumbering waitlist: %w", err)
	}

	if _, err := s.auditLog.Append(ctx, audit.NewEntryParams{
		Action: "promote", ResourceType: "enrollment", ResourceID: agg.EnrollmentID.String(), ActorID: actorID,
		Metadata: map[string]any{"student_id": agg.StudentID, "section_id": candidate.SectionID.String()},
	}, now); err != nil {
		telemetry.AuditAppendFailuresTotal.Inc()
		return fmt.Errorf("%w: %v", ErrAuditFailure, err)
	}

	telemetry.EnrollmentOutcomesTotal.WithLabelValues("promoted").Inc()
	return nil
}

// ListEnrollments returns the read-model projection of a student's
// enrollments, optionally filtered to one semester.
func (s *Service) ListEnrollments(ctx context.Context, studentID, semester string) ([]academic.EnrollmentRow, error) {
	return s.academic.ListEnrollmentsByStudent(ctx, studentID, semester)
}

// Reconcile rebuilds an enrollment aggregate's true state by folding its
// event stream from the latest snapshot forward, for callers that suspect
// the academic read model has drifted from the event log (the append and
// the read-model upsert are not in the same transaction, so a crash
// between them leaves the row stale until a replayer folds the stream). It
// does not write anything back; callers decide what to do with the
// reconciled state.
func (s *Service) Reconcile(ctx context.Context, enrollmentID uuid.UUID) (*Aggregate, error) {
	streamID := StreamID(enrollmentID)
	state, version, err := s.events.Replay(ctx, streamID, enrollmentID.String(), foldEnvelopes(enrollmentID))
	if err != nil {
		return nil, fmt.Errorf("enrollment: reconciling %s: %w", enrollmentID, err)
	}
	agg, err := Fold(enrollmentID, state, version, nil)
	if err != nil {
		return nil, fmt.Errorf("enrollment: unmarshaling reconciled state for %s: %w", enrollmentID, err)
	}
	return agg, nil
}

// foldEnvelopes adapts the aggregate's DomainEvent-based Fold to the
// eventstore.Fold shape, which speaks in terms of persisted Envelopes.
func foldEnvelopes(enrollmentID uuid.UUID) eventstore.Fold {
	return func(snapshotState json.RawMessage, snapshotVersion int64, envelopes []eventstore.Envelope) (json.RawMessage, int64, error) {
		events := make([]DomainEvent, 0, len(envelopes))
		for _, e := range envelopes {
			events = append(events, DomainEvent{Type: EventType(e.EventType), Payload: e.Payload, Timestamp: e.Timestamp})
		}
		agg, err := Fold(enrollmentID, snapshotState, snapshotVersion, events)
		if err != nil {
			return nil, 0, err
		}
		state, err := agg.Snapshot()
		if err != nil {
			return nil, 0, err
		}
		return state, agg.Version, nil
	}
}

func (s *Service) buildContext(ctx context.Context, studentID string, section academic.Section, course academic.Course, student academic.Student, semester string) (policy.Context, error) {
	completed, err := s.academic.GetCompletedCourses(ctx, studentID)
	if err != nil {
		return policy.Context{}, err
	}
	currentSchedule, err := s.academic.GetCurrentSchedule(ctx, studentID, semester)
	if err != nil {
		return policy.Context{}, err
	}
	currentCredits, err := s.academic.GetCurrentCredits(ctx, studentID, semester)
	if err != nil {
		return policy.Context{}, err
	}

	schedules := make([]policy.Schedule, 0, len(currentSchedule))
	for _, sec := range currentSchedule {
		schedules = append(schedules, sec.Schedule)
	}

	maxCredits := s.cfg.MaxCreditsPerSemester
	if maxCredits == 0 {
		maxCredits = 18
	}

	return policy.Context{
		StudentID:               studentID,
		SectionID:               section.SectionID.String(),
		StudentCompletedCourses: completed,
		CourseCode:              course.CourseCode,
		CoursePrerequisites:     course.Prerequisites,
		CourseCredits:           course.Credits,
		SectionSchedule:         section.Schedule,
		SectionEnrollment:       section.CurrentEnrollment,
		SectionMaxEnrollment:    section.MaxEnrollment,
		StudentCurrentSchedule:  schedules,
		StudentCurrentCredits:   currentCredits,
		MaxCreditsPerSemester:   maxCredits,
		StudentAcademicStanding: student.AcademicStanding,
	}, nil
}

func (s *Service) maybeSnapshot(ctx context.Context, agg *Aggregate) error {
	every := s.cfg.SnapshotEveryNEvents
	if every <= 0 {
		every = 10
	}
	if agg.Version%int64(every) != 0 {
		return nil
	}
	state, err := agg.Snapshot()
	if err != nil {
		return err
	}
	return s.events.SaveSnapshot(ctx, eventstore.Snapshot{
		AggregateID:   agg.EnrollmentID.String(),
		AggregateType: "enrollment",
		State:         state,
		Version:       agg.Version,
		EventCount:    agg.Version,
	})
}

// capacityOnlyDenial reports whether a denial names the capacity rule as
// its only violated rule.
func capacityOnlyDenial(r policy.Result) bool {
	if r.Allowed || len(r.ViolatedRules) == 0 {
		return false
	}
	for _, rule := range r.ViolatedRules {
		if rule != (policy.CapacityPolicy{}).Name() {
			return false
		}
	}
	return true
}

func isConcurrencyError(err error) bool {
	var ce *eventstore.ConcurrencyError
	return errors.As(err, &ce)
}

// conflictOrErr converts an exhausted-retry concurrency error into the
// caller-facing ConcurrencyConflictError and passes everything else through.
func (s *Service) conflictOrErr(err error) error {
	var ce *eventstore.ConcurrencyError
	if errors.As(err, &ce) {
		telemetry.EventStoreConflictsTotal.WithLabelValues("enrollment").Inc()
		return &ConcurrencyConflictError{Expected: ce.Expected, Actual: ce.Actual}
	}
	return err
}

func (s *Service) notFound(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, resource)
	}
	return fmt.Errorf("enrollment: fetching %s: %w", resource, err)
}

func (s *Service) retryAttempts() uint {
	if s.cfg.ConcurrencyRetryLimit == 0 {
		return 3
	}
	return s.cfg.ConcurrencyRetryLimit
}

func (c Config) lockTTL() time.Duration {
	if c.LockDefaultTTL <= 0 {
		return 5 * time.Second
	}
	return c.LockDefaultTTL
}

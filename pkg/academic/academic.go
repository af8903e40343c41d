// Package academic implements the read-model boundary the enrollment core
// consumes: courses, sections, students, and the enrollments projection.
package academic

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/campusorch/enrollcore/internal/db"
	"github.com/campusorch/enrollcore/pkg/policy"
)

// Course is the read-model view of a course.
type Course struct {
	CourseCode    string
	Credits       int
	Prerequisites []string
	Corequisites  []string
	Level         string
	Department    string
}

// Section is the read-model view of a section.
type Section struct {
	SectionID          uuid.UUID
	CourseCode         string
	Semester           string
	InstructorID       string
	Schedule           policy.Schedule
	RoomID             string
	MaxEnrollment      int
	CurrentEnrollment  int
	WaitlistSize       int
	MaxWaitlist        int
	AddDropDeadline    time.Time
	WithdrawalDeadline time.Time
}

// Student is the read-model view of a student.
type Student struct {
	StudentID        string
	GPA              float64
	AcademicStanding string
}

// EnrollmentRow is the read-model projection of one enrollment.
type EnrollmentRow struct {
	EnrollmentID     uuid.UUID
	StudentID        string
	SectionID        uuid.UUID
	Status           string
	WaitlistPosition *int
	EnrolledAt       time.Time
	Version          int64
}

// ErrActiveEnrollmentExists is returned by UpsertEnrollment when it would
// create a second active (enrolled/waitlisted) row for the same
// (student, section) pair. It backstops the service's own read-then-check
// against the same race TryIncrementEnrollment closes for capacity: the
// database's partial unique index is the final authority, not the
// in-process check.
var ErrActiveEnrollmentExists = db.ErrActiveEnrollmentExists

// CounterField names the section counter IncrementSectionCounter mutates.
type CounterField string

const (
	CounterCurrentEnrollment CounterField = "current_enrollment"
	CounterWaitlistSize      CounterField = "waitlist_size"
)

// Store is the academic read-model boundary. It is satisfied by
// *academic.PostgresStore.
type Store interface {
	GetSection(ctx context.Context, sectionID uuid.UUID) (Section, error)
	GetCourse(ctx context.Context, courseCode string) (Course, error)
	GetStudent(ctx context.Context, studentID string) (Student, error)
	GetCompletedCourses(ctx context.Context, studentID string) (map[string]bool, error)
	GetCurrentSchedule(ctx context.Context, studentID, semester string) ([]Section, error)
	GetCurrentCredits(ctx context.Context, studentID, semester string) (int, error)
	GetActiveEnrollment(ctx context.Context, studentID string, sectionID uuid.UUID) (*EnrollmentRow, error)
	GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (EnrollmentRow, error)
	ListEnrollmentsByStudent(ctx context.Context, studentID, semester string) ([]EnrollmentRow, error)
	UpsertEnrollment(ctx context.Context, row EnrollmentRow) error
	IncrementSectionCounter(ctx context.Context, sectionID uuid.UUID, field CounterField, delta int) error
	// TryIncrementEnrollment reserves a seat by incrementing current_enrollment,
	// but only if the section has not already reached max_enrollment. The
	// ceiling check and the increment happen as one atomic operation, so it
	// is the authority for the capacity ceiling under concurrent enrollment
	// attempts — the lease in pkg/enrollment is an optional latency
	// optimization layered on top, not a substitute for this.
	TryIncrementEnrollment(ctx context.Context, sectionID uuid.UUID) (ok bool, err error)
	// TryIncrementWaitlist reserves a waitlist slot the same way, returning
	// the new waitlist_size (which is also the reserved entry's position)
	// on success.
	TryIncrementWaitlist(ctx context.Context, sectionID uuid.UUID) (ok bool, position int, err error)
	PromoteWaitlistCandidate(ctx context.Context, sectionID uuid.UUID) (*EnrollmentRow, error)
	DecrementWaitlistPositions(ctx context.Context, sectionID uuid.UUID, vacatedPosition int) error
}

// PostgresStore implements Store against internal/db.
type PostgresStore struct {
	q *db.Queries
}

// NewPostgresStore builds a PostgresStore bound to dbtx.
func NewPostgresStore(dbtx db.DBTX) *PostgresStore {
	return &PostgresStore{q: db.New(dbtx)}
}

func scheduleFromRow(days []string, startMin, endMin int32) policy.Schedule {
	dayset := make(map[string]bool, len(days))
	for _, d := range days {
		dayset[d] = true
	}
	return policy.Schedule{Days: dayset, StartMin: int(startMin), EndMin: int(endMin)}
}

func sectionFromRow(row db.Section) Section {
	roomID := ""
	if row.RoomID.Valid {
		roomID = row.RoomID.String
	}
	return Section{
		SectionID:          row.SectionID,
		CourseCode:         row.CourseCode,
		Semester:           row.Semester,
		InstructorID:       row.InstructorID,
		Schedule:           scheduleFromRow(row.ScheduleDays, row.StartTimeMinutes, row.EndTimeMinutes),
		RoomID:             roomID,
		MaxEnrollment:      int(row.MaxEnrollment),
		CurrentEnrollment:  int(row.CurrentEnrollment),
		WaitlistSize:       int(row.WaitlistSize),
		MaxWaitlist:        int(row.MaxWaitlist),
		AddDropDeadline:    row.AddDropDeadline,
		WithdrawalDeadline: row.WithdrawalDeadline,
	}
}

func enrollmentFromRow(row db.EnrollmentRow) EnrollmentRow {
	var pos *int
	if row.WaitlistPosition.Valid {
		v := int(row.WaitlistPosition.Int32)
		pos = &v
	}
	return EnrollmentRow{
		EnrollmentID:     row.EnrollmentID,
		StudentID:        row.StudentID,
		SectionID:        row.SectionID,
		Status:           row.Status,
		WaitlistPosition: pos,
		EnrolledAt:       row.EnrolledAt,
		Version:          row.Version,
	}
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID uuid.UUID) (Section, error) {
	row, err := s.q.GetSection(ctx, sectionID)
	if err != nil {
		return Section{}, err
	}
	return sectionFromRow(row), nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, courseCode string) (Course, error) {
	row, err := s.q.GetCourse(ctx, courseCode)
	if err != nil {
		return Course{}, err
	}
	return Course{
		CourseCode:    row.CourseCode,
		Credits:       int(row.Credits),
		Prerequisites: row.Prerequisites,
		Corequisites:  row.Corequisites,
		Level:         row.Level,
		Department:    row.Department,
	}, nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, studentID string) (Student, error) {
	row, err := s.q.GetStudent(ctx, studentID)
	if err != nil {
		return Student{}, err
	}
	return Student{StudentID: row.StudentID, GPA: row.GPA, AcademicStanding: row.AcademicStanding}, nil
}

func (s *PostgresStore) GetCompletedCourses(ctx context.Context, studentID string) (map[string]bool, error) {
	rows, err := s.q.GetCompletedCourses(ctx, studentID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		out[r.CourseCode] = true
	}
	return out, nil
}

func (s *PostgresStore) GetCurrentSchedule(ctx context.Context, studentID, semester string) ([]Section, error) {
	rows, err := s.q.GetCurrentSchedule(ctx, studentID, semester)
	if err != nil {
		return nil, err
	}
	out := make([]Section, 0, len(rows))
	for _, r := range rows {
		out = append(out, sectionFromRow(r))
	}
	return out, nil
}

func (s *PostgresStore) GetCurrentCredits(ctx context.Context, studentID, semester string) (int, error) {
	total, err := s.q.GetCurrentCredits(ctx, studentID, semester)
	return int(total), err
}

func (s *PostgresStore) GetActiveEnrollment(ctx context.Context, studentID string, sectionID uuid.UUID) (*EnrollmentRow, error) {
	row, err := s.q.GetActiveEnrollment(ctx, studentID, sectionID)
	if err != nil {
		if errorsIsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	e := enrollmentFromRow(*row)
	return &e, nil
}

func (s *PostgresStore) GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (EnrollmentRow, error) {
	row, err := s.q.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return EnrollmentRow{}, err
	}
	return enrollmentFromRow(row), nil
}

func (s *PostgresStore) ListEnrollmentsByStudent(ctx context.Context, studentID, semester string) ([]EnrollmentRow, error) {
	var semesterFilter pgtype.Text
	if semester != "" {
		semesterFilter = pgtype.Text{String: semester, Valid: true}
	}
	rows, err := s.q.ListEnrollmentsByStudent(ctx, studentID, semesterFilter)
	if err != nil {
		return nil, err
	}
	out := make([]EnrollmentRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, enrollmentFromRow(r))
	}
	return out, nil
}

func (s *PostgresStore) UpsertEnrollment(ctx context.Context, row EnrollmentRow) error {
	var pos pgtype.Int4
	if row.WaitlistPosition != nil {
		pos = pgtype.Int4{Int32: int32(*row.WaitlistPosition), Valid: true}
	}
	return s.q.UpsertEnrollment(ctx, db.UpsertEnrollmentParams{
		EnrollmentID:     row.EnrollmentID,
		StudentID:        row.StudentID,
		SectionID:        row.SectionID,
		Status:           row.Status,
		WaitlistPosition: pos,
		EnrolledAt:       row.EnrolledAt,
		Version:          row.Version,
	})
}

func (s *PostgresStore) IncrementSectionCounter(ctx context.Context, sectionID uuid.UUID, field CounterField, delta int) error {
	return s.q.IncrementSectionCounter(ctx, sectionID, string(field), int32(delta))
}

func (s *PostgresStore) TryIncrementEnrollment(ctx context.Context, sectionID uuid.UUID) (bool, error) {
	return s.q.TryIncrementEnrollment(ctx, sectionID)
}

func (s *PostgresStore) TryIncrementWaitlist(ctx context.Context, sectionID uuid.UUID) (bool, int, error) {
	ok, position, err := s.q.TryIncrementWaitlist(ctx, sectionID)
	return ok, int(position), err
}

func (s *PostgresStore) PromoteWaitlistCandidate(ctx context.Context, sectionID uuid.UUID) (*EnrollmentRow, error) {
	row, err := s.q.PromoteWaitlistCandidate(ctx, sectionID)
	if err != nil {
		if errorsIsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	e := enrollmentFromRow(*row)
	return &e, nil
}

func (s *PostgresStore) DecrementWaitlistPositions(ctx context.Context, sectionID uuid.UUID, vacatedPosition int) error {
	return s.q.DecrementWaitlistPositions(ctx, sectionID, int32(vacatedPosition))
}

// SectionRoster pairs a section with the student IDs currently enrolled in
// it, the shape the invariant sweep consumes.
type SectionRoster struct {
	Section Section
	Roster  []string
}

// ListSectionRosters returns every section with its enrolled roster. It is
// not part of Store because only the background sweep reads whole rosters.
func (s *PostgresStore) ListSectionRosters(ctx context.Context) ([]SectionRoster, error) {
	rows, err := s.q.ListSectionRosters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SectionRoster, 0, len(rows))
	for _, r := range rows {
		out = append(out, SectionRoster{Section: sectionFromRow(r.Section), Roster: r.EnrolledStudents})
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)

func errorsIsNoRows(err error) bool {
	return err == pgx.ErrNoRows
}

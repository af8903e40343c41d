package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func errorsIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// GetCourse fetches a course by its code.
func (q *Queries) GetCourse(ctx context.Context, courseCode string) (Course, error) {
	const query = `
		SELECT course_code, credits, prerequisites, corequisites, level, department
		FROM courses WHERE course_code = $1`

	row := q.db.QueryRow(ctx, query, courseCode)
	var c Course
	if err := row.Scan(&c.CourseCode, &c.Credits, &c.Prerequisites, &c.Corequisites, &c.Level, &c.Department); err != nil {
		return Course{}, err
	}
	return c, nil
}

// GetSection fetches a section by id.
func (q *Queries) GetSection(ctx context.Context, sectionID uuid.UUID) (Section, error) {
	const query = `
		SELECT section_id, course_code, semester, instructor_id, schedule_days,
		       start_time_minutes, end_time_minutes, room_id, max_enrollment,
		       current_enrollment, waitlist_size, max_waitlist, add_drop_deadline, withdrawal_deadline
		FROM sections WHERE section_id = $1`

	row := q.db.QueryRow(ctx, query, sectionID)
	var s Section
	if err := row.Scan(
		&s.SectionID, &s.CourseCode, &s.Semester, &s.InstructorID, &s.ScheduleDays,
		&s.StartTimeMinutes, &s.EndTimeMinutes, &s.RoomID, &s.MaxEnrollment,
		&s.CurrentEnrollment, &s.WaitlistSize, &s.MaxWaitlist, &s.AddDropDeadline, &s.WithdrawalDeadline,
	); err != nil {
		return Section{}, err
	}
	return s, nil
}

// GetStudent fetches a student by id.
func (q *Queries) GetStudent(ctx context.Context, studentID string) (Student, error) {
	const query = `SELECT student_id, gpa, academic_standing FROM students WHERE student_id = $1`

	row := q.db.QueryRow(ctx, query, studentID)
	var s Student
	if err := row.Scan(&s.StudentID, &s.GPA, &s.AcademicStanding); err != nil {
		return Student{}, err
	}
	return s, nil
}

// GetCompletedCourses returns the course codes a student has completed.
func (q *Queries) GetCompletedCourses(ctx context.Context, studentID string) ([]CompletedCourse, error) {
	const query = `SELECT student_id, course_code, grade FROM completed_courses WHERE student_id = $1`

	rows, err := q.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("listing completed courses for %s: %w", studentID, err)
	}
	defer rows.Close()

	var out []CompletedCourse
	for rows.Next() {
		var c CompletedCourse
		if err := rows.Scan(&c.StudentID, &c.CourseCode, &c.Grade); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCurrentSchedule returns the sections a student currently holds an
// active (enrolled or waitlisted) seat in for a given semester.
func (q *Queries) GetCurrentSchedule(ctx context.Context, studentID, semester string) ([]Section, error) {
	const query = `
		SELECT s.section_id, s.course_code, s.semester, s.instructor_id, s.schedule_days,
		       s.start_time_minutes, s.end_time_minutes, s.room_id, s.max_enrollment,
		       s.current_enrollment, s.waitlist_size, s.max_waitlist, s.add_drop_deadline, s.withdrawal_deadline
		FROM enrollments e
		JOIN sections s ON s.section_id = e.section_id
		WHERE e.student_id = $1 AND s.semester = $2 AND e.status IN ('enrolled', 'waitlisted')`

	rows, err := q.db.Query(ctx, query, studentID, semester)
	if err != nil {
		return nil, fmt.Errorf("listing current schedule for %s/%s: %w", studentID, semester, err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(
			&s.SectionID, &s.CourseCode, &s.Semester, &s.InstructorID, &s.ScheduleDays,
			&s.StartTimeMinutes, &s.EndTimeMinutes, &s.RoomID, &s.MaxEnrollment,
			&s.CurrentEnrollment, &s.WaitlistSize, &s.MaxWaitlist, &s.AddDropDeadline, &s.WithdrawalDeadline,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCurrentCredits sums the credit load of a student's active enrollments
// (enrolled only; waitlisted seats do not count against the ceiling) for a semester.
func (q *Queries) GetCurrentCredits(ctx context.Context, studentID, semester string) (int32, error) {
	const query = `
		SELECT COALESCE(SUM(c.credits), 0)
		FROM enrollments e
		JOIN sections s ON s.section_id = e.section_id
		JOIN courses c ON c.course_code = s.course_code
		WHERE e.student_id = $1 AND s.semester = $2 AND e.status = 'enrolled'`

	var total int32
	if err := q.db.QueryRow(ctx, query, studentID, semester).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing current credits for %s/%s: %w", studentID, semester, err)
	}
	return total, nil
}

// GetActiveEnrollment returns the active (enrolled or waitlisted) enrollment
// row for a (student, section) pair, if one exists.
func (q *Queries) GetActiveEnrollment(ctx context.Context, studentID string, sectionID uuid.UUID) (*EnrollmentRow, error) {
	const query = `
		SELECT enrollment_id, student_id, section_id, status, waitlist_position, enrolled_at, version
		FROM enrollments
		WHERE student_id = $1 AND section_id = $2 AND status IN ('enrolled', 'waitlisted')`

	row := q.db.QueryRow(ctx, query, studentID, sectionID)
	var e EnrollmentRow
	if err := row.Scan(&e.EnrollmentID, &e.StudentID, &e.SectionID, &e.Status, &e.WaitlistPosition, &e.EnrolledAt, &e.Version); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEnrollment fetches an enrollment row by id.
func (q *Queries) GetEnrollment(ctx context.Context, enrollmentID uuid.UUID) (EnrollmentRow, error) {
	const query = `
		SELECT enrollment_id, student_id, section_id, status, waitlist_position, enrolled_at, version
		FROM enrollments WHERE enrollment_id = $1`

	row := q.db.QueryRow(ctx, query, enrollmentID)
	var e EnrollmentRow
	if err := row.Scan(&e.EnrollmentID, &e.StudentID, &e.SectionID, &e.Status, &e.WaitlistPosition, &e.EnrolledAt, &e.Version); err != nil {
		return EnrollmentRow{}, err
	}
	return e, nil
}

// ListEnrollmentsByStudent returns a student's enrollments, optionally
// filtered to one semester.
func (q *Queries) ListEnrollmentsByStudent(ctx context.Context, studentID string, semester pgtype.Text) ([]EnrollmentRow, error) {
	const query = `
		SELECT e.enrollment_id, e.student_id, e.section_id, e.status, e.waitlist_position, e.enrolled_at, e.version
		FROM enrollments e
		JOIN sections s ON s.section_id = e.section_id
		WHERE e.student_id = $1 AND ($2::text IS NULL OR s.semester = $2)
		ORDER BY e.enrolled_at ASC`

	rows, err := q.db.Query(ctx, query, studentID, semester)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments for %s: %w", studentID, err)
	}
	defer rows.Close()

	var out []EnrollmentRow
	for rows.Next() {
		var e EnrollmentRow
		if err := rows.Scan(&e.EnrollmentID, &e.StudentID, &e.SectionID, &e.Status, &e.WaitlistPosition, &e.EnrolledAt, &e.Version); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEnrollmentParams is the input to UpsertEnrollment.
type UpsertEnrollmentParams struct {
	EnrollmentID     uuid.UUID
	StudentID        string
	SectionID        uuid.UUID
	Status           string
	WaitlistPosition pgtype.Int4
	EnrolledAt       time.Time
	Version          int64
}

// UpsertEnrollment writes the read-model projection of an enrollment
// aggregate after its events have been durably appended.
func (q *Queries) UpsertEnrollment(ctx context.Context, p UpsertEnrollmentParams) error {
	const query = `
		INSERT INTO enrollments (enrollment_id, student_id, section_id, status, waitlist_position, enrolled_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (enrollment_id) DO UPDATE SET
			status = EXCLUDED.status,
			waitlist_position = EXCLUDED.waitlist_position,
			version = EXCLUDED.version`

	_, err := q.db.Exec(ctx, query, p.EnrollmentID, p.StudentID, p.SectionID, p.Status, p.WaitlistPosition, p.EnrolledAt, p.Version)
	if err != nil {
		if isUniqueViolationOn(err, "enrollments_active_student_section_uidx") {
			return ErrActiveEnrollmentExists
		}
		return fmt.Errorf("upserting enrollment %s: %w", p.EnrollmentID, err)
	}
	return nil
}

// IncrementSectionCounter adjusts a section's current_enrollment or
// waitlist_size by delta (which may be negative). It does not enforce a
// ceiling: callers adding a seat must use TryIncrementEnrollment or
// TryIncrementWaitlist instead, which guard against the capacity race.
func (q *Queries) IncrementSectionCounter(ctx context.Context, sectionID uuid.UUID, field string, delta int32) error {
	var column string
	switch field {
	case "current_enrollment":
		column = "current_enrollment"
	case "waitlist_size":
		column = "waitlist_size"
	default:
		return fmt.Errorf("incrementing section counter: unknown field %q", field)
	}

	query := fmt.Sprintf(`UPDATE sections SET %s = %s + $1 WHERE section_id = $2`, column, column)
	_, err := q.db.Exec(ctx, query, delta, sectionID)
	if err != nil {
		return fmt.Errorf("incrementing %s on section %s: %w", field, sectionID, err)
	}
	return nil
}

// TryIncrementEnrollment atomically increments current_enrollment by one,
// but only if the section is not already at max_enrollment. The WHERE
// clause is evaluated against the same row version the UPDATE locks, so
// concurrent callers racing for the last seat serialize on Postgres's row
// lock rather than on a read-decide-write window: exactly one of them sees
// a row in its RETURNING clause.
func (q *Queries) TryIncrementEnrollment(ctx context.Context, sectionID uuid.UUID) (bool, error) {
	const query = `
		UPDATE sections SET current_enrollment = current_enrollment + 1
		WHERE section_id = $1 AND current_enrollment < max_enrollment
		RETURNING current_enrollment`

	var newValue int32
	err := q.db.QueryRow(ctx, query, sectionID).Scan(&newValue)
	if err != nil {
		if errorsIsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("reserving a seat on section %s: %w", sectionID, err)
	}
	return true, nil
}

// TryIncrementWaitlist atomically increments waitlist_size by one, but only
// if the section's waitlist is not already full. The returned value is the
// new waitlist_size, which doubles as the 1-based position of the just-added
// entry since waitlist_position is assigned in increment order.
func (q *Queries) TryIncrementWaitlist(ctx context.Context, sectionID uuid.UUID) (bool, int32, error) {
	const query = `
		UPDATE sections SET waitlist_size = waitlist_size + 1
		WHERE section_id = $1 AND waitlist_size < max_waitlist
		RETURNING waitlist_size`

	var newValue int32
	err := q.db.QueryRow(ctx, query, sectionID).Scan(&newValue)
	if err != nil {
		if errorsIsNoRows(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("reserving a waitlist slot on section %s: %w", sectionID, err)
	}
	return true, newValue, nil
}

// PromoteWaitlistCandidate returns the position-1 waitlisted enrollment row
// for a section, if one exists. Renumbering the remaining waitlist is the
// caller's responsibility (see pkg/enrollment's promotion logic).
func (q *Queries) PromoteWaitlistCandidate(ctx context.Context, sectionID uuid.UUID) (*EnrollmentRow, error) {
	const query = `
		SELECT enrollment_id, student_id, section_id, status, waitlist_position, enrolled_at, version
		FROM enrollments
		WHERE section_id = $1 AND status = 'waitlisted' AND waitlist_position = 1`

	row := q.db.QueryRow(ctx, query, sectionID)
	var e EnrollmentRow
	if err := row.Scan(&e.EnrollmentID, &e.StudentID, &e.SectionID, &e.Status, &e.WaitlistPosition, &e.EnrolledAt, &e.Version); err != nil {
		return nil, err
	}
	return &e, nil
}

// DecrementWaitlistPositions shifts every waitlisted enrollment behind the
// vacated position down by one, after that position's entry has been
// promoted or dropped.
func (q *Queries) DecrementWaitlistPositions(ctx context.Context, sectionID uuid.UUID, vacatedPosition int32) error {
	const query = `
		UPDATE enrollments SET waitlist_position = waitlist_position - 1
		WHERE section_id = $1 AND status = 'waitlisted' AND waitlist_position > $2`

	_, err := q.db.Exec(ctx, query, sectionID, vacatedPosition)
	if err != nil {
		return fmt.Errorf("renumbering waitlist for section %s: %w", sectionID, err)
	}
	return nil
}

// SectionRosterRow pairs a section with the student_ids currently holding an
// enrolled seat in it.
type SectionRosterRow struct {
	Section
	EnrolledStudents []string
}

// ListSectionRosters returns every section together with its enrolled
// roster, for the periodic invariant sweep.
func (q *Queries) ListSectionRosters(ctx context.Context) ([]SectionRosterRow, error) {
	const query = `
		SELECT s.section_id, s.course_code, s.semester, s.instructor_id, s.schedule_days,
		       s.start_time_minutes, s.end_time_minutes, s.room_id, s.max_enrollment,
		       s.current_enrollment, s.waitlist_size, s.max_waitlist, s.add_drop_deadline, s.withdrawal_deadline,
		       COALESCE(array_agg(e.student_id ORDER BY e.enrolled_at) FILTER (WHERE e.status = 'enrolled'), '{}')
		FROM sections s
		LEFT JOIN enrollments e ON e.section_id = s.section_id
		GROUP BY s.section_id`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing section rosters: %w", err)
	}
	defer rows.Close()

	var out []SectionRosterRow
	for rows.Next() {
		var r SectionRosterRow
		if err := rows.Scan(
			&r.SectionID, &r.CourseCode, &r.Semester, &r.InstructorID, &r.ScheduleDays,
			&r.StartTimeMinutes, &r.EndTimeMinutes, &r.RoomID, &r.MaxEnrollment,
			&r.CurrentEnrollment, &r.WaitlistSize, &r.MaxWaitlist, &r.AddDropDeadline, &r.WithdrawalDeadline,
			&r.EnrolledStudents,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

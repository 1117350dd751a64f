/*
attendance.go - Attendance, summary, absence and follow-up queries

ABSENCE SEMANTICS:
  Two deliberately different readings of "absent":
  - ListAbsent / ListAbsentForRole use a LEFT JOIN: a student with no
    record for the day counts as absent, because follow-up work must
    catch students nobody marked.
  - SummaryForDate counts only explicit records: unmarked students are
    in Total but in neither Present nor Absent, so headline stats don't
    inflate "absent" with "not yet marked".
  Do not unify the two without product sign-off.

SUMMARY FAILURE MODE:
  SummaryForDate never returns an error. Any internal failure is logged
  through the store logger and reported as all-zero counts; the dashboard
  stays up at the cost of conflating "query failed" with "no data".
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rollcall/attendance/attendance"
	"github.com/rollcall/attendance/roster"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// MarkAttendance records a student's status for a day. Keyed by
// (student, date): the last call for a given day wins, there is no
// history. The student must exist.
func (s *Store) MarkAttendance(ctx context.Context, prn, date string, status attendance.Status, updatedAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid attendance status %q", status)
	}
	if _, err := attendance.ParseDay(date); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (student_prn, date, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(student_prn, date) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at`,
		prn, date, string(status), updatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %q", roster.ErrStudentMissing, prn)
		}
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	return nil
}

// AttendanceByDate returns the explicit records for a day joined with
// their students, scoped by the caller's role: a batch teacher sees
// only records of students in their assigned batches.
func (s *Store) AttendanceByDate(ctx context.Context, date string, teacherID roster.UserID, role roster.Role) ([]attendance.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch roster.VisibilityFor(role) {
	case roster.VisibilityAll:
		return s.queryRosterEntries(ctx, `
			SELECT a.student_prn, a.date, a.status, a.updated_at, s.name, s.batch_id
			FROM attendance a
			INNER JOIN students s ON a.student_prn = s.prn
			WHERE a.date = ?
			ORDER BY s.batch_id, s.name ASC`,
			date)

	case roster.VisibilityAssigned:
		return s.queryRosterEntries(ctx, `
			SELECT DISTINCT a.student_prn, a.date, a.status, a.updated_at, s.name, s.batch_id
			FROM attendance a
			INNER JOIN students s ON a.student_prn = s.prn
			INNER JOIN teacher_assignments ta ON s.batch_id = ta.batch_id
			WHERE a.date = ? AND ta.teacher_id = ?
			ORDER BY s.batch_id, s.name ASC`,
			date, teacherID)

	default:
		return nil, nil
	}
}

func (s *Store) queryRosterEntries(ctx context.Context, query string, args ...any) ([]attendance.RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var entries []attendance.RosterEntry
	for rows.Next() {
		var e attendance.RosterEntry
		var status, updatedAt string
		var batchID sql.NullString
		if err := rows.Scan(&e.StudentPRN, &e.Date, &status, &updatedAt, &e.StudentName, &batchID); err != nil {
			return nil, err
		}
		e.Status = attendance.Status(status)
		e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at %q for %s: %w", updatedAt, e.StudentPRN, err)
		}
		e.BatchID = batchID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryForDate returns {total, present, absent} for a day. For a
// batch teacher all three counts are restricted to students in their
// assigned batches (DISTINCT so a student never double-counts through
// multiple qualifying join paths); admins and attendance teachers get
// global counts; an unknown role gets zeros.
//
// Never fails: errors degrade to zero counts and go to the log only.
func (s *Store) SummaryForDate(ctx context.Context, date string, teacherID roster.UserID, role roster.Role) attendance.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary attendance.Summary
	var err error

	switch roster.VisibilityFor(role) {
	case roster.VisibilityAll:
		summary, err = s.globalSummary(ctx, date)
	case roster.VisibilityAssigned:
		summary, err = s.assignedSummary(ctx, date, teacherID)
	default:
		return attendance.Summary{}
	}

	if err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"date":    date,
			"teacher": teacherID,
			"role":    role,
		}).Error("attendance summary failed, reporting zero counts")
		return attendance.Summary{}
	}
	return summary
}

func (s *Store) globalSummary(ctx context.Context, date string) (attendance.Summary, error) {
	var sum attendance.Summary

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM students").Scan(&sum.Total); err != nil {
		return attendance.Summary{}, fmt.Errorf("total count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE date = ? AND status = ?",
		date, string(attendance.StatusPresent)).Scan(&sum.Present); err != nil {
		return attendance.Summary{}, fmt.Errorf("present count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE date = ? AND status = ?",
		date, string(attendance.StatusAbsent)).Scan(&sum.Absent); err != nil {
		return attendance.Summary{}, fmt.Errorf("absent count: %w", err)
	}

	return sum, nil
}

func (s *Store) assignedSummary(ctx context.Context, date string, teacherID roster.UserID) (attendance.Summary, error) {
	var sum attendance.Summary

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT s.prn)
		FROM students s
		INNER JOIN teacher_assignments ta ON s.batch_id = ta.batch_id
		WHERE ta.teacher_id = ?`,
		teacherID).Scan(&sum.Total); err != nil {
		return attendance.Summary{}, fmt.Errorf("total count: %w", err)
	}

	statusCount := func(status attendance.Status) (int, error) {
		var n int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT a.student_prn)
			FROM attendance a
			INNER JOIN students s ON a.student_prn = s.prn
			INNER JOIN teacher_assignments ta ON s.batch_id = ta.batch_id
			WHERE a.date = ? AND a.status = ? AND ta.teacher_id = ?`,
			date, string(status), teacherID).Scan(&n)
		return n, err
	}

	var err error
	if sum.Present, err = statusCount(attendance.StatusPresent); err != nil {
		return attendance.Summary{}, fmt.Errorf("present count: %w", err)
	}
	if sum.Absent, err = statusCount(attendance.StatusAbsent); err != nil {
		return attendance.Summary{}, fmt.Errorf("absent count: %w", err)
	}

	return sum, nil
}

// =============================================================================
// ABSENCE (absent-or-unmarked)
// =============================================================================

const absentStudentQuery = `
	SELECT s.prn, s.name, s.batch_id, a.status
	FROM students s
	LEFT JOIN attendance a ON a.student_prn = s.prn AND a.date = ?`

// ListAbsent returns every student in the batch who was explicitly
// marked Absent for the day OR has no record at all - unmarked students
// are treated as absent for follow-up purposes. Ordered by name.
func (s *Store) ListAbsent(ctx context.Context, date, batchID string) ([]attendance.AbsentStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAbsent(ctx, absentStudentQuery+`
		WHERE s.batch_id = ? AND (a.status = ? OR a.status IS NULL)
		ORDER BY s.name ASC`,
		date, batchID, string(attendance.StatusAbsent))
}

// ListAbsentForRole is the role-scoped variant: a batch teacher sees
// absent-or-unmarked students across their assigned batches, everyone
// with full visibility sees them across all students.
func (s *Store) ListAbsentForRole(ctx context.Context, date string, teacherID roster.UserID, role roster.Role) ([]attendance.AbsentStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch roster.VisibilityFor(role) {
	case roster.VisibilityAll:
		return s.queryAbsent(ctx, absentStudentQuery+`
			WHERE a.status = ? OR a.status IS NULL
			ORDER BY s.batch_id, s.name ASC`,
			date, string(attendance.StatusAbsent))

	case roster.VisibilityAssigned:
		return s.queryAbsent(ctx, `
			SELECT DISTINCT s.prn, s.name, s.batch_id, a.status
			FROM students s
			INNER JOIN teacher_assignments ta ON s.batch_id = ta.batch_id
			LEFT JOIN attendance a ON a.student_prn = s.prn AND a.date = ?
			WHERE ta.teacher_id = ? AND (a.status = ? OR a.status IS NULL)
			ORDER BY s.batch_id, s.name ASC`,
			date, teacherID, string(attendance.StatusAbsent))

	default:
		return nil, nil
	}
}

func (s *Store) queryAbsent(ctx context.Context, query string, args ...any) ([]attendance.AbsentStudent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query absent students: %w", err)
	}
	defer rows.Close()

	var absent []attendance.AbsentStudent
	for rows.Next() {
		var a attendance.AbsentStudent
		var batchID, status sql.NullString
		if err := rows.Scan(&a.PRN, &a.Name, &batchID, &status); err != nil {
			return nil, err
		}
		a.BatchID = batchID.String
		a.Marked = status.Valid
		absent = append(absent, a)
	}
	return absent, rows.Err()
}

// =============================================================================
// FOLLOW-UPS
// =============================================================================

// AddFollowUp appends a follow-up record and returns its generated id.
// Follow-ups are never updated or deleted; multiple per student and day
// are allowed. The student must exist.
func (s *Store) AddFollowUp(ctx context.Context, fu attendance.FollowUp) (int64, error) {
	if _, err := attendance.ParseDay(fu.Date); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO followups (student_prn, date, proof_path, remarks) VALUES (?, ?, ?, ?)",
		fu.StudentPRN, fu.Date, nullString(fu.ProofPath), nullString(fu.Remarks),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("%w: %q", roster.ErrStudentMissing, fu.StudentPRN)
		}
		return 0, fmt.Errorf("failed to add follow-up: %w", err)
	}

	return res.LastInsertId()
}

// FollowUpsForStudent returns a student's follow-ups, newest day first.
func (s *Store) FollowUpsForStudent(ctx context.Context, prn string) ([]attendance.FollowUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_prn, date, proof_path, remarks
		FROM followups
		WHERE student_prn = ?
		ORDER BY date DESC, id DESC`,
		prn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups: %w", err)
	}
	defer rows.Close()

	var followUps []attendance.FollowUp
	for rows.Next() {
		var fu attendance.FollowUp
		var proofPath, remarks sql.NullString
		if err := rows.Scan(&fu.ID, &fu.StudentPRN, &fu.Date, &proofPath, &remarks); err != nil {
			return nil, err
		}
		fu.ProofPath = proofPath.String
		fu.Remarks = remarks.String
		followUps = append(followUps, fu)
	}
	return followUps, rows.Err()
}

// FollowUpsByDate returns the follow-ups recorded for a day joined with
// their students, for the review listing.
func (s *Store) FollowUpsByDate(ctx context.Context, date string) ([]attendance.FollowUpDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.student_prn, f.date, f.proof_path, f.remarks, s.name, s.batch_id
		FROM followups f
		INNER JOIN students s ON f.student_prn = s.prn
		WHERE f.date = ?
		ORDER BY s.batch_id, s.name ASC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups by date: %w", err)
	}
	defer rows.Close()

	var details []attendance.FollowUpDetail
	for rows.Next() {
		var d attendance.FollowUpDetail
		var proofPath, remarks, batchID sql.NullString
		if err := rows.Scan(&d.ID, &d.StudentPRN, &d.Date, &proofPath, &remarks, &d.StudentName, &batchID); err != nil {
			return nil, err
		}
		d.ProofPath = proofPath.String
		d.Remarks = remarks.String
		d.BatchID = batchID.String
		details = append(details, d)
	}
	return details, rows.Err()
}

/*
roster.go - User, batch, student and assignment queries

PURPOSE:
  CRUD for the roster entities plus the role-scoped student listing.
  Lookup misses return (nil, nil) or an empty slice - "not found" is a
  normal outcome here, not an error. Constraint violations map onto the
  roster sentinel errors so callers can test with errors.Is.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rollcall/attendance/roster"
)

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a new account and returns it with its generated id.
// The password must already be hashed; this layer never sees plaintext.
// A taken username yields roster.ErrDuplicateUsername.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, role roster.Role) (roster.User, error) {
	if !role.Valid() {
		return roster.User{}, fmt.Errorf("%w: %q", roster.ErrUnknownRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, passwordHash, string(role),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return roster.User{}, fmt.Errorf("%w: %q", roster.ErrDuplicateUsername, username)
		}
		return roster.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return roster.User{}, fmt.Errorf("failed to read user id: %w", err)
	}

	return roster.User{
		ID:           roster.UserID(id),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
	}, nil
}

// UserByUsername returns the account with the given username, including
// its password hash for credential verification. (nil, nil) on miss.
func (s *Store) UserByUsername(ctx context.Context, username string) (*roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u roster.User
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, role FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &role)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u.Role = roster.Role(role)
	return &u, nil
}

// UserByID returns the account with the given id, or (nil, nil).
func (s *Store) UserByID(ctx context.Context, id roster.UserID) (*roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u roster.User
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, role FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &role)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	u.Role = roster.Role(role)
	return &u, nil
}

// ListTeachers returns every teacher account (attendance and batch
// teachers), ordered by username. Password hashes are not populated.
func (s *Store) ListTeachers(ctx context.Context) ([]roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, role FROM users WHERE role IN (?, ?) ORDER BY username ASC",
		string(roster.RoleAttendanceTeacher), string(roster.RoleBatchTeacher),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	var teachers []roster.User
	for rows.Next() {
		var u roster.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role); err != nil {
			return nil, err
		}
		u.Role = roster.Role(role)
		teachers = append(teachers, u)
	}
	return teachers, rows.Err()
}

// DeleteUser removes an account. Its batch assignments cascade away;
// deleting an unknown id is a no-op.
func (s *Store) DeleteUser(ctx context.Context, id roster.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

// SeedAdmin inserts the default admin account if no user with that
// username exists. Safe to call on every start.
func (s *Store) SeedAdmin(ctx context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		username, passwordHash, string(roster.RoleAdmin),
	)
	return err
}

// =============================================================================
// BATCHES
// =============================================================================

// SaveBatch upserts a batch: replaying the same id replaces the name.
func (s *Store) SaveBatch(ctx context.Context, b roster.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (batch_id, batch_name) VALUES (?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET batch_name = excluded.batch_name`,
		b.ID, b.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// BatchByID returns a batch, or (nil, nil) when it does not exist.
func (s *Store) BatchByID(ctx context.Context, id string) (*roster.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b roster.Batch
	err := s.db.QueryRowContext(ctx,
		"SELECT batch_id, batch_name FROM batches WHERE batch_id = ?", id,
	).Scan(&b.ID, &b.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns all batches ordered by name.
func (s *Store) ListBatches(ctx context.Context) ([]roster.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT batch_id, batch_name FROM batches ORDER BY batch_name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []roster.Batch
	for rows.Next() {
		var b roster.Batch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// DeleteBatch removes a batch. Its students are detached (batch_id set
// to NULL), never deleted; its teacher assignments cascade away.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE batch_id = ?", id)
	return err
}

// =============================================================================
// STUDENTS
// =============================================================================

const studentColumns = "prn, name, email, mobile, parent_mobile, batch_id"

// SaveStudent upserts a student by PRN: a re-import with the same PRN
// replaces every other field (not a merge). A non-empty batch reference
// must point at an existing batch.
func (s *Store) SaveStudent(ctx context.Context, st roster.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (prn, name, email, mobile, parent_mobile, batch_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(prn) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			mobile = excluded.mobile,
			parent_mobile = excluded.parent_mobile,
			batch_id = excluded.batch_id`,
		st.PRN, st.Name, st.Email, st.Mobile, st.ParentMobile, nullStringPtr(st.BatchID),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %q", roster.ErrBatchMissing, st.BatchRef())
		}
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// StudentByPRN returns a student, or (nil, nil) when unknown.
func (s *Store) StudentByPRN(ctx context.Context, prn string) (*roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+studentColumns+" FROM students WHERE prn = ?", prn)

	st, err := scanStudent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up student: %w", err)
	}
	return &st, nil
}

// StudentPRNs returns every student identifier. The import reconciler
// uses this for its point-in-time duplicate snapshot.
func (s *Store) StudentPRNs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT prn FROM students")
	if err != nil {
		return nil, fmt.Errorf("failed to list student prns: %w", err)
	}
	defer rows.Close()

	var prns []string
	for rows.Next() {
		var prn string
		if err := rows.Scan(&prn); err != nil {
			return nil, err
		}
		prns = append(prns, prn)
	}
	return prns, rows.Err()
}

// ListStudents returns students ordered by name within the given batch,
// or all students when batchID is empty.
func (s *Store) ListStudents(ctx context.Context, batchID string) ([]roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + studentColumns + " FROM students ORDER BY name ASC"
	args := []any{}
	if batchID != "" {
		query = "SELECT " + studentColumns + " FROM students WHERE batch_id = ? ORDER BY name ASC"
		args = append(args, batchID)
	}

	return s.queryStudents(ctx, query, args...)
}

// ListStudentsForRole is the role-scoped student listing. Admin and
// attendance teachers see every student ordered by (batch, name); a
// batch teacher sees the distinct union of students in their assigned
// batches, same ordering; any other role sees nothing.
//
// The DISTINCT guards against join fan-out, not data duplication - the
// unique (teacher_id, batch_id) constraint already rules out duplicate
// assignment rows.
func (s *Store) ListStudentsForRole(ctx context.Context, teacherID roster.UserID, role roster.Role) ([]roster.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch roster.VisibilityFor(role) {
	case roster.VisibilityAll:
		return s.queryStudents(ctx,
			"SELECT "+studentColumns+" FROM students ORDER BY batch_id, name ASC")

	case roster.VisibilityAssigned:
		return s.queryStudents(ctx, `
			SELECT DISTINCT s.prn, s.name, s.email, s.mobile, s.parent_mobile, s.batch_id
			FROM students s
			INNER JOIN teacher_assignments ta ON s.batch_id = ta.batch_id
			WHERE ta.teacher_id = ?
			ORDER BY s.batch_id, s.name ASC`,
			teacherID)

	default:
		return nil, nil
	}
}

// DeleteStudent removes a student; attendance and follow-ups cascade
// away with them. Teacher assignments reference batches, not students,
// and are unaffected.
func (s *Store) DeleteStudent(ctx context.Context, prn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE prn = ?", prn)
	return err
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]roster.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var students []roster.Student
	for rows.Next() {
		st, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func scanStudent(scan func(dest ...any) error) (roster.Student, error) {
	var st roster.Student
	var email, mobile, parentMobile, batchID sql.NullString

	if err := scan(&st.PRN, &st.Name, &email, &mobile, &parentMobile, &batchID); err != nil {
		return st, err
	}

	st.Email = email.String
	st.Mobile = mobile.String
	st.ParentMobile = parentMobile.String
	st.BatchID = ptrFromNull(batchID)
	return st, nil
}

// =============================================================================
// TEACHER ASSIGNMENTS
// =============================================================================

// AssignTeacher links a teacher to a batch. Idempotent: assigning an
// existing pair succeeds silently (guarded by the unique constraint).
// Both the teacher and the batch must exist.
func (s *Store) AssignTeacher(ctx context.Context, teacherID roster.UserID, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teacher_assignments (teacher_id, batch_id) VALUES (?, ?)
		ON CONFLICT(teacher_id, batch_id) DO NOTHING`,
		teacherID, batchID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: teacher %d / batch %q", roster.ErrBatchMissing, teacherID, batchID)
		}
		return fmt.Errorf("failed to assign teacher: %w", err)
	}
	return nil
}

// RemoveAssignment unlinks a teacher from a batch. No-op when the pair
// does not exist.
func (s *Store) RemoveAssignment(ctx context.Context, teacherID roster.UserID, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM teacher_assignments WHERE teacher_id = ? AND batch_id = ?",
		teacherID, batchID,
	)
	return err
}

// BatchesForTeacher returns the batches assigned to a teacher, by name.
func (s *Store) BatchesForTeacher(ctx context.Context, teacherID roster.UserID) ([]roster.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.batch_id, b.batch_name
		FROM batches b
		INNER JOIN teacher_assignments ta ON b.batch_id = ta.batch_id
		WHERE ta.teacher_id = ?
		ORDER BY b.batch_name ASC`,
		teacherID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teacher batches: %w", err)
	}
	defer rows.Close()

	var batches []roster.Batch
	for rows.Next() {
		var b roster.Batch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// TeachersForBatch returns the teachers linked to a batch, by username.
// Password hashes are not populated.
func (s *Store) TeachersForBatch(ctx context.Context, batchID string) ([]roster.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.role
		FROM users u
		INNER JOIN teacher_assignments ta ON u.id = ta.teacher_id
		WHERE ta.batch_id = ?
		ORDER BY u.username ASC`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch teachers: %w", err)
	}
	defer rows.Close()

	var teachers []roster.User
	for rows.Next() {
		var u roster.User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role); err != nil {
			return nil, err
		}
		u.Role = roster.Role(role)
		teachers = append(teachers, u)
	}
	return teachers, rows.Err()
}

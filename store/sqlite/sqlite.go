/*
Package sqlite provides the SQLite-backed store for the attendance engine.

PURPOSE:
  Owns the schema and every typed query the application performs. There
  is one embedded database accessed from a single process; the store is
  constructed once at startup and injected into whatever needs it (the
  import reconciler, the auth service, the HTTP handlers).

KEY TABLES:
  users:               accounts (admin + teachers), closed role set
  batches:             class sections, externally supplied ids
  students:            keyed by PRN, nullable reference to a batch
  teacher_assignments: teacher<->batch links, unique per pair
  attendance:          one row per (student, day), last write wins
  followups:           append-only absence follow-up trail

REFERENTIAL INTEGRITY:
  Foreign keys are enforced (_foreign_keys=on):
  - deleting a batch detaches its students (ON DELETE SET NULL) and
    removes its assignments (CASCADE); students are never deleted
    through a batch
  - deleting a student cascades to attendance and followups
  - deleting a user cascades to assignments

UPSERTS:
  Batch and student upserts use ON CONFLICT ... DO UPDATE. With foreign
  keys enforced, INSERT OR REPLACE would delete-and-reinsert the row and
  fire the cascades above, silently dropping attendance history on every
  re-import. DO UPDATE keeps the replace semantics without the side
  effects.

INITIALIZATION:
  Schema creation is idempotent (CREATE ... IF NOT EXISTS) and runs on
  every New(). If the database cannot be opened or migrated, New fails
  and the caller is expected to treat that as fatal.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety across overlapping calls within
  the one process. SQLite is opened in WAL mode: readers don't block,
  one writer at a time.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  Use ":memory:" for tests.

SEE ALSO:
  - roster.go: user/batch/student/assignment queries
  - attendance.go: attendance, summary, absence and follow-up queries
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Store implements the query layer on top of an embedded SQLite file.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	log *logrus.Logger
}

// New opens (creating if needed) the database at dbPath and applies the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, log: logrus.StandardLogger()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// SetLogger replaces the logger used for side-channel reporting
// (summary failures). Defaults to the logrus standard logger.
func (s *Store) SetLogger(log *logrus.Logger) {
	s.log = log
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema. Idempotent: safe on every start,
// existing tables and data are preserved.
func (s *Store) migrate() error {
	schema := `
	-- Accounts. Role is a closed set; see roster.Role.
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('Admin', 'AttendanceTeacher', 'BatchTeacher'))
	);

	-- Class sections. batch_id is externally supplied.
	CREATE TABLE IF NOT EXISTS batches (
		batch_id TEXT PRIMARY KEY NOT NULL,
		batch_name TEXT NOT NULL
	);

	-- Students, keyed by PRN. Deleting a batch detaches its students
	-- rather than removing them.
	CREATE TABLE IF NOT EXISTS students (
		prn TEXT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		mobile TEXT,
		parent_mobile TEXT,
		batch_id TEXT,
		FOREIGN KEY (batch_id) REFERENCES batches(batch_id) ON DELETE SET NULL
	);

	-- Teacher-to-batch links for role-based access. Unique per pair.
	CREATE TABLE IF NOT EXISTS teacher_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL,
		batch_id TEXT NOT NULL,
		UNIQUE(teacher_id, batch_id),
		FOREIGN KEY (teacher_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (batch_id) REFERENCES batches(batch_id) ON DELETE CASCADE
	);

	-- One attendance row per student per day; marking again overwrites.
	CREATE TABLE IF NOT EXISTS attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_prn TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('Present', 'Absent')),
		updated_at TEXT NOT NULL,
		UNIQUE(student_prn, date),
		FOREIGN KEY (student_prn) REFERENCES students(prn) ON DELETE CASCADE
	);

	-- Append-only follow-up trail for absent students.
	CREATE TABLE IF NOT EXISTS followups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_prn TEXT NOT NULL,
		date TEXT NOT NULL,
		proof_path TEXT,
		remarks TEXT,
		FOREIGN KEY (student_prn) REFERENCES students(prn) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_students_batch
		ON students(batch_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_date
		ON attendance(date);
	CREATE INDEX IF NOT EXISTS idx_attendance_prn
		ON attendance(student_prn);
	CREATE INDEX IF NOT EXISTS idx_teacher_assignments_teacher
		ON teacher_assignments(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_followups_student
		ON followups(student_prn);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"followups", "attendance", "teacher_assignments", "students", "batches", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

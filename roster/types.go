/*
types.go - Core roster entities

PURPOSE:
  Defines the people and groupings the attendance engine tracks:
  users (admins and teachers), batches (class sections) and students.
  The teacher-to-batch assignment link lives only in the store; its
  queries take and return (UserID, batch id) pairs directly.

IDENTIFIERS:
  UserID:  generated integer, assigned by the store on creation.
  BatchID: externally supplied string (e.g. "CS-A"), primary key.
  PRN:     Permanent Registration Number, the student's unique key,
           supplied by the institution via import files.

NULLABILITY:
  Student.BatchID is a pointer: a student may exist without a batch
  (detached when their batch is deleted, or imported without one).

SEE ALSO:
  - policy.go: Role definitions and visibility mapping
  - store/sqlite: persistence for these entities
*/
package roster

// UserID identifies a user row. Generated by the store.
type UserID int64

// User is an account that can sign in: an admin or a teacher.
// PasswordHash holds a bcrypt hash, never the raw credential.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	Role         Role
}

// Batch is a named group of students, e.g. a class section.
// The ID is externally supplied and doubles as the display name
// when imports don't carry a separate one.
type Batch struct {
	ID   string
	Name string
}

// Student is a tracked student. Email, Mobile and ParentMobile are
// optional contact fields carried through from import files.
type Student struct {
	PRN          string
	Name         string
	Email        string
	Mobile       string
	ParentMobile string
	BatchID      *string // nil when the student is not in any batch
}

// InBatch reports whether the student currently belongs to the given batch.
func (s Student) InBatch(batchID string) bool {
	return s.BatchID != nil && *s.BatchID == batchID
}

// BatchRef returns the student's batch id, or "" when detached.
func (s Student) BatchRef() string {
	if s.BatchID == nil {
		return ""
	}
	return *s.BatchID
}

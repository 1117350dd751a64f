/*
errors.go - Sentinel errors for the roster domain

PURPOSE:
  All domain error values in one place. The store wraps these with
  context via fmt.Errorf("...: %w", ...); callers test with errors.Is.

NOTE:
  Lookup misses are NOT errors anywhere in this module: queries that
  find nothing return (nil, nil) or an empty slice. Only constraint
  violations and storage faults surface as errors.
*/
package roster

import "errors"

var (
	// ErrDuplicateUsername is returned when creating a user whose
	// username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrUnknownRole is returned when an operation is handed a role
	// outside the closed set.
	ErrUnknownRole = errors.New("unknown role")

	// ErrStudentMissing is returned when a write references a student
	// PRN that does not exist (foreign key violation).
	ErrStudentMissing = errors.New("student does not exist")

	// ErrBatchMissing is returned when a write references a batch that
	// does not exist.
	ErrBatchMissing = errors.New("batch does not exist")
)

// IsConstraint reports whether err is one of the constraint-violation
// sentinels, as opposed to a storage fault.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrStudentMissing) ||
		errors.Is(err, ErrBatchMissing)
}

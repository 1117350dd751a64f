/*
policy.go - Roles and the access-control policy

PURPOSE:
  Defines the closed set of roles and the single pure mapping from a
  role to the data it may see. Every role-scoped read in the store
  (student listing, attendance summary, absence query) switches on
  VisibilityFor so the restriction is applied consistently.

ROLES:
  Admin:             full visibility, may manage users/batches/imports.
  AttendanceTeacher: full visibility over students and attendance.
  BatchTeacher:      visibility restricted to students in batches the
                     teacher is assigned to.

DESIGN:
  Role is a closed string type rather than free-form text. The store
  constrains the column with a CHECK on the same three literals, and
  VisibilityFor handles every member explicitly - adding a role means
  touching both places, which is the point.
*/
package roster

// Role classifies a user account.
type Role string

const (
	RoleAdmin             Role = "Admin"
	RoleAttendanceTeacher Role = "AttendanceTeacher"
	RoleBatchTeacher      Role = "BatchTeacher"
)

// Roles lists every valid role, in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAttendanceTeacher, RoleBatchTeacher}
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAttendanceTeacher, RoleBatchTeacher:
		return true
	}
	return false
}

// Teaching reports whether the role marks a teacher account
// (anything that shows up in the teacher management screen).
func (r Role) Teaching() bool {
	return r == RoleAttendanceTeacher || r == RoleBatchTeacher
}

// Visibility is the subset of students/attendance a role may read.
type Visibility int

const (
	// VisibilityNone hides everything. Unrecognized roles land here,
	// so a corrupted role value fails closed.
	VisibilityNone Visibility = iota

	// VisibilityAll exposes every student, batch and attendance row.
	VisibilityAll

	// VisibilityAssigned restricts reads to students whose batch is in
	// the caller's assignment set.
	VisibilityAssigned
)

// VisibilityFor is the access-control policy: it maps a role to the
// visibility applied by every role-scoped read. Pure; the store is the
// sole consumer.
func VisibilityFor(role Role) Visibility {
	switch role {
	case RoleAdmin, RoleAttendanceTeacher:
		return VisibilityAll
	case RoleBatchTeacher:
		return VisibilityAssigned
	default:
		return VisibilityNone
	}
}

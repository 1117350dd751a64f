/*
types.go - Attendance and follow-up records

PURPOSE:
  The daily attendance domain: a per-student per-day status record
  (last write wins, no history) and the append-only follow-up trail
  kept for absent students.

DATES:
  Calendar days travel as ISO strings ("2006-01-02"). A day is the
  natural key component here - attendance is unique on (PRN, day) -
  so the string form is used directly in the store and over the API.

SEE ALSO:
  - summary.go: daily aggregate counts
  - store/sqlite: persistence and the absent-or-unmarked query
*/
package attendance

import (
	"fmt"
	"time"
)

// Status is the per-day attendance state of a student.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Valid reports whether s is one of the two allowed states.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// DayLayout is the wire and storage format for calendar days.
const DayLayout = "2006-01-02"

// Day formats t as a calendar day string.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay validates a calendar day string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return t, nil
}

// Record is one student's attendance for one day. Marking the same
// (StudentPRN, Date) again overwrites the prior record.
type Record struct {
	StudentPRN string
	Date       string // ISO day
	Status     Status
	UpdatedAt  time.Time
}

// RosterEntry is a record joined with the student it belongs to, as
// returned by date-scoped listings.
type RosterEntry struct {
	Record
	StudentName string
	BatchID     string // "" when the student is detached
}

// AbsentStudent is a row from the absence query: a student who was
// either explicitly marked Absent or not marked at all for the day.
// Marked is false for the unmarked case.
type AbsentStudent struct {
	PRN     string
	Name    string
	BatchID string
	Marked  bool
}

// FollowUp is a dated note recorded after contacting an absent
// student. Append-only; ProofPath is an opaque reference to an
// externally stored evidence file.
type FollowUp struct {
	ID         int64
	StudentPRN string
	Date       string // ISO day
	ProofPath  string
	Remarks    string
}

// FollowUpDetail is a follow-up joined with its student, for the
// per-day review listing.
type FollowUpDetail struct {
	FollowUp
	StudentName string
	BatchID     string
}

/*
summary.go - Daily aggregate counts

SEMANTICS (deliberate asymmetry, do not unify):
  Summary counts only EXPLICIT records: a student with no attendance
  row for the day is in Total but in neither Present nor Absent.
  The absence listing (store.ListAbsent) instead treats unmarked as
  absent, because follow-up work must catch students nobody marked.
  Headline stats must not inflate "absent" with "not yet marked".
*/
package attendance

import "github.com/shopspring/decimal"

// Summary is the headline attendance count for one day.
// Total >= Present + Absent; the remainder is unmarked students.
type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

// Unmarked returns the number of students with no record for the day.
func (s Summary) Unmarked() int {
	return s.Total - s.Present - s.Absent
}

// Rate returns the present percentage (0-100) as an exact decimal,
// rounded to two places. Zero when no students exist.
func (s Summary) Rate() decimal.Decimal {
	if s.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Present)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.Total))).
		Round(2)
}

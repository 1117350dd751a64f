/*
Package importer reconciles bulk roster imports against the store.

PURPOSE:
  Takes a parsed sequence of tabular rows (one per student, produced by
  a CSV/Excel decoder) and turns it into idempotent batch and student
  upserts, with per-row diagnostics. Import files are user-supplied and
  commonly contain bad rows, so this is a best-effort batch operation:
  an error on one row never blocks the rows after it.

ALGORITHM:
  1. Snapshot existing student PRNs once, before the first row.
  2. For each row, in input order:
     - trim and validate PRN and Name (both required)
     - reject PRNs already in the snapshot or seen earlier in this run
     - if the row names a batch, upsert it BEFORE the student so the
       foreign key is satisfiable (the id doubles as display name)
     - upsert the student; on success the PRN joins the seen set
  3. Report {success count, row errors, batches touched}.

NOT TRANSACTIONAL:
  A failure partway leaves completed rows committed. Rows are
  independent and idempotent to retry, so re-running the import after
  fixing bad rows is the recovery path. Concurrent imports against the
  same store race on the snapshot and are out of scope (single-user
  app).
*/
package importer

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/roster"
)

// Row-level error reasons, surfaced verbatim to the operator.
const (
	ReasonMissingFields = "Missing PRN or Name"
	ReasonDuplicatePRN  = "Duplicate PRN"
	ReasonDatabaseError = "Database error"
)

// Row is one parsed line of an import file. All fields are optional at
// this level; Reconcile enforces what is required.
type Row struct {
	PRN          string
	Name         string
	Email        string
	Mobile       string
	ParentMobile string
	BatchID      string
}

// RowError ties a rejection reason to the 1-based input row it struck.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Report is the outcome of one import run.
type Report struct {
	Success int                 `json:"success"`
	Errors  []RowError          `json:"errors"`
	Batches map[string]struct{} `json:"-"`
}

// BatchIDs returns the batches touched by the run, sorted.
func (r Report) BatchIDs() []string {
	ids := make([]string, 0, len(r.Batches))
	for id := range r.Batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Store is the slice of the query layer the reconciler needs.
type Store interface {
	StudentPRNs(ctx context.Context) ([]string, error)
	SaveBatch(ctx context.Context, b roster.Batch) error
	SaveStudent(ctx context.Context, st roster.Student) error
}

// Reconciler validates, deduplicates and persists import rows.
type Reconciler struct {
	store Store
	log   *logrus.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, log: logrus.StandardLogger()}
}

// SetLogger replaces the run-summary logger.
func (rc *Reconciler) SetLogger(log *logrus.Logger) {
	rc.log = log
}

// Reconcile processes rows strictly in input order and returns the
// report. The only error it can return is a failure to take the
// initial PRN snapshot; everything after that is per-row.
func (rc *Reconciler) Reconcile(ctx context.Context, rows []Row) (Report, error) {
	report := Report{Batches: make(map[string]struct{})}

	// Point-in-time snapshot; rows added during this run join it so
	// in-file duplicates are caught too.
	existing, err := rc.store.StudentPRNs(ctx)
	if err != nil {
		return report, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, prn := range existing {
		seen[prn] = struct{}{}
	}

	for i, row := range rows {
		rowNum := i + 1

		prn := strings.TrimSpace(row.PRN)
		name := strings.TrimSpace(row.Name)
		batchID := strings.TrimSpace(row.BatchID)

		if prn == "" || name == "" {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Reason: ReasonMissingFields})
			continue
		}
		if _, dup := seen[prn]; dup {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Reason: ReasonDuplicatePRN})
			continue
		}

		// Batch first: the student row references it.
		if batchID != "" {
			if err := rc.store.SaveBatch(ctx, roster.Batch{ID: batchID, Name: batchID}); err != nil {
				rc.log.WithError(err).WithField("row", rowNum).Warn("import: batch upsert failed")
				report.Errors = append(report.Errors, RowError{Row: rowNum, Reason: ReasonDatabaseError})
				continue
			}
			report.Batches[batchID] = struct{}{}
		}

		st := roster.Student{
			PRN:          prn,
			Name:         name,
			Email:        strings.TrimSpace(row.Email),
			Mobile:       strings.TrimSpace(row.Mobile),
			ParentMobile: strings.TrimSpace(row.ParentMobile),
		}
		if batchID != "" {
			st.BatchID = &batchID
		}

		if err := rc.store.SaveStudent(ctx, st); err != nil {
			rc.log.WithError(err).WithField("row", rowNum).Warn("import: student upsert failed")
			report.Errors = append(report.Errors, RowError{Row: rowNum, Reason: ReasonDatabaseError})
			continue
		}

		seen[prn] = struct{}{}
		report.Success++
	}

	rc.log.WithFields(logrus.Fields{
		"rows":    len(rows),
		"success": report.Success,
		"errors":  len(report.Errors),
		"batches": len(report.Batches),
	}).Info("import run finished")

	return report, nil
}

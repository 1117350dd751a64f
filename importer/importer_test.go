package importer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/attendance/importer"
	"github.com/rollcall/attendance/roster"
	"github.com/rollcall/attendance/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReconcile_MixedRows(t *testing.T) {
	// GIVEN: an empty store and a file with one good row, one in-file
	// duplicate and one row missing its PRN
	// THEN: exactly the first row lands, with per-row errors for the rest

	store := newTestStore(t)
	ctx := context.Background()

	rc := importer.NewReconciler(store)
	report, err := rc.Reconcile(ctx, []importer.Row{
		{PRN: "1", Name: "A", BatchID: "X"},
		{PRN: "1", Name: "B"},
		{PRN: "", Name: "C"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Success)
	assert.Equal(t, []importer.RowError{
		{Row: 2, Reason: importer.ReasonDuplicatePRN},
		{Row: 3, Reason: importer.ReasonMissingFields},
	}, report.Errors)
	assert.Equal(t, []string{"X"}, report.BatchIDs())

	students, err := store.ListStudents(ctx, "")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "1", students[0].PRN)
	assert.Equal(t, "A", students[0].Name)
	assert.Equal(t, "X", students[0].BatchRef())

	// The batch was created with its id as display name.
	batch, err := store.BatchByID(ctx, "X")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "X", batch.Name)
}

func TestReconcile_PreexistingPRNRejected(t *testing.T) {
	// GIVEN: a student already in the store
	// WHEN: re-importing the same PRN
	// THEN: the row is rejected; the stored student is untouched

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStudent(ctx, roster.Student{PRN: "100", Name: "Original"}))

	rc := importer.NewReconciler(store)
	report, err := rc.Reconcile(ctx, []importer.Row{{PRN: "100", Name: "Replacement"}})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, importer.ReasonDuplicatePRN, report.Errors[0].Reason)

	st, err := store.StudentByPRN(ctx, "100")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "Original", st.Name)
}

func TestReconcile_TrimsFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rc := importer.NewReconciler(store)
	report, err := rc.Reconcile(ctx, []importer.Row{
		{PRN: "  7  ", Name: " Dana ", Email: " d@x.io ", BatchID: " Y "},
		{PRN: "   ", Name: "OnlySpacesPRN"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, importer.ReasonMissingFields, report.Errors[0].Reason)

	st, err := store.StudentByPRN(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "Dana", st.Name)
	assert.Equal(t, "d@x.io", st.Email)
	assert.Equal(t, "Y", st.BatchRef())
}

// failingStore wraps a real store and fails student writes for a
// chosen PRN, to exercise the per-row database-error path.
type failingStore struct {
	importer.Store
	failPRN string
}

func (f *failingStore) SaveStudent(ctx context.Context, st roster.Student) error {
	if st.PRN == f.failPRN {
		return errors.New("disk full")
	}
	return f.Store.SaveStudent(ctx, st)
}

func TestReconcile_StorageFailureDoesNotAbortRun(t *testing.T) {
	// GIVEN: storage that rejects the second row
	// THEN: rows before and after it still land

	store := newTestStore(t)
	ctx := context.Background()

	rc := importer.NewReconciler(&failingStore{Store: store, failPRN: "2"})
	report, err := rc.Reconcile(ctx, []importer.Row{
		{PRN: "1", Name: "A"},
		{PRN: "2", Name: "B"},
		{PRN: "3", Name: "C"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, importer.RowError{Row: 2, Reason: importer.ReasonDatabaseError}, report.Errors[0])

	students, err := store.ListStudents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

func TestReadCSV(t *testing.T) {
	input := "PRN,Name,Email,Mobile,ParentMobile,BatchID\n" +
		"1,Alice,a@x.io,111,222,CS-A\n" +
		"2,Bob,,,,\n"

	rows, err := importer.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, importer.Row{
		PRN: "1", Name: "Alice", Email: "a@x.io",
		Mobile: "111", ParentMobile: "222", BatchID: "CS-A",
	}, rows[0])
	assert.Equal(t, importer.Row{PRN: "2", Name: "Bob"}, rows[1])
}

func TestReadCSV_HeaderVariants(t *testing.T) {
	// Case-insensitive headers, extra column ignored, ragged short row.
	input := "prn,NAME,batchid,Comment\n" +
		"9,Iva,Z,ignore me\n" +
		"10,Short\n"

	rows, err := importer.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, importer.Row{PRN: "9", Name: "Iva", BatchID: "Z"}, rows[0])
	assert.Equal(t, importer.Row{PRN: "10", Name: "Short"}, rows[1])
}

func TestReadCSV_ByteOrderMark(t *testing.T) {
	// Excel exports prefix the file with a UTF-8 BOM, which lands on
	// the first header name.
	input := "\uFEFFPRN,Name,BatchID\n" +
		"7,Hana,CS-B\n"

	rows, err := importer.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, importer.Row{PRN: "7", Name: "Hana", BatchID: "CS-B"}, rows[0])
}

func TestReadCSV_Empty(t *testing.T) {
	rows, err := importer.ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollcall/attendance/attendance"
	"github.com/rollcall/attendance/roster"
	"github.com/rollcall/attendance/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustBatch(t *testing.T, store *sqlite.Store, id, name string) {
	t.Helper()
	require.NoError(t, store.SaveBatch(context.Background(), roster.Batch{ID: id, Name: name}))
}

func mustStudent(t *testing.T, store *sqlite.Store, prn, name, batchID string) {
	t.Helper()
	st := roster.Student{PRN: prn, Name: name}
	if batchID != "" {
		st.BatchID = &batchID
	}
	require.NoError(t, store.SaveStudent(context.Background(), st))
}

func mustTeacher(t *testing.T, store *sqlite.Store, username string, role roster.Role) roster.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), username, "x-hash", role)
	require.NoError(t, err)
	return u
}

func mustMark(t *testing.T, store *sqlite.Store, prn, date string, status attendance.Status) {
	t.Helper()
	require.NoError(t, store.MarkAttendance(context.Background(), prn, date, status, time.Now()))
}

// =============================================================================
// SCHEMA / LIFECYCLE
// =============================================================================

func TestNew_IdempotentOnExistingFile(t *testing.T) {
	// GIVEN: a database file that already has data
	// WHEN: the store is opened again (fresh process start)
	// THEN: schema creation is a no-op and the data survives

	path := t.TempDir() + "/attendance.db"

	store, err := sqlite.New(path)
	require.NoError(t, err)
	mustBatch(t, store, "X", "Batch X")
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	batch, err := reopened.BatchByID(context.Background(), "X")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "Batch X", batch.Name)
}

func TestNew_FailsOnUnusablePath(t *testing.T) {
	_, err := sqlite.New("/nonexistent-dir/sub/attendance.db")
	assert.Error(t, err, "unavailable storage must fail, not limp along")
}

// =============================================================================
// USERS
// =============================================================================

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, "t1", "h1", roster.RoleBatchTeacher)
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "t1", "h2", roster.RoleAdmin)
	assert.ErrorIs(t, err, roster.ErrDuplicateUsername)
}

func TestCreateUser_RejectsUnknownRole(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateUser(context.Background(), "t1", "h1", roster.Role("Janitor"))
	assert.ErrorIs(t, err, roster.ErrUnknownRole)
}

func TestUserByUsername_MissIsAbsentNotError(t *testing.T) {
	store := newTestStore(t)

	user, err := store.UserByUsername(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestListTeachers_ExcludesAdmins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustTeacher(t, store, "zoe", roster.RoleBatchTeacher)
	mustTeacher(t, store, "amy", roster.RoleAttendanceTeacher)
	mustTeacher(t, store, "boss", roster.RoleAdmin)

	teachers, err := store.ListTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, "amy", teachers[0].Username, "ordered by username")
	assert.Equal(t, "zoe", teachers[1].Username)
}

func TestSeedAdmin_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedAdmin(ctx, "admin", "hash-1"))
	require.NoError(t, store.SeedAdmin(ctx, "admin", "hash-2"))

	admin, err := store.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, "hash-1", admin.PasswordHash, "second seed must not overwrite")
	assert.Equal(t, roster.RoleAdmin, admin.Role)
}

// =============================================================================
// BATCHES AND STUDENTS
// =============================================================================

func TestSaveBatch_UpsertReplacesName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "First")
	mustBatch(t, store, "X", "Second")

	batches, err := store.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "Second", batches[0].Name)
}

func TestDeleteBatch_DetachesStudentsWithoutDeletingThem(t *testing.T) {
	// GIVEN: a batch with two students
	// WHEN: the batch is deleted
	// THEN: the students survive with a null batch reference

	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustStudent(t, store, "1", "A", "X")
	mustStudent(t, store, "2", "B", "X")

	require.NoError(t, store.DeleteBatch(ctx, "X"))

	students, err := store.ListStudents(ctx, "")
	require.NoError(t, err)
	require.Len(t, students, 2)
	for _, st := range students {
		assert.Nil(t, st.BatchID, "student %s should be detached", st.PRN)
	}
}

func TestSaveStudent_UpsertIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustStudent(t, store, "1", "A", "")
	mustStudent(t, store, "1", "A", "")

	students, err := store.ListStudents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, students, 1, "identical replay yields exactly one row")

	// Different name, same PRN: second write wins wholesale.
	mustStudent(t, store, "1", "B", "")
	st, err := store.StudentByPRN(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "B", st.Name)
}

func TestSaveStudent_UpsertDoesNotDropAttendance(t *testing.T) {
	// Re-importing a student must replace their fields, not cascade
	// away their attendance history.

	store := newTestStore(t)
	ctx := context.Background()

	mustStudent(t, store, "1", "A", "")
	mustMark(t, store, "1", "2025-03-10", attendance.StatusPresent)

	mustStudent(t, store, "1", "A-renamed", "")

	entries, err := store.AttendanceByDate(ctx, "2025-03-10", 0, roster.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A-renamed", entries[0].StudentName)
}

func TestSaveStudent_UnknownBatchRejected(t *testing.T) {
	store := newTestStore(t)

	ghost := "no-such-batch"
	err := store.SaveStudent(context.Background(), roster.Student{PRN: "1", Name: "A", BatchID: &ghost})
	assert.ErrorIs(t, err, roster.ErrBatchMissing)
}

func TestDeleteStudent_CascadesAttendanceAndFollowUps(t *testing.T) {
	// GIVEN: a student with attendance and follow-up rows, and a
	// teacher assignment on the same batch
	// WHEN: the student is deleted
	// THEN: their attendance and follow-ups are gone; the assignment
	// (which references the batch, not the student) is unaffected

	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustStudent(t, store, "1", "A", "X")
	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	mustMark(t, store, "1", "2025-03-10", attendance.StatusAbsent)
	_, err := store.AddFollowUp(ctx, attendance.FollowUp{StudentPRN: "1", Date: "2025-03-10", Remarks: "called home"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteStudent(ctx, "1"))

	entries, err := store.AttendanceByDate(ctx, "2025-03-10", 0, roster.RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, entries)

	followUps, err := store.FollowUpsForStudent(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, followUps)

	batches, err := store.BatchesForTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Len(t, batches, 1, "assignment must survive student deletion")
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssignTeacher_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)

	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"), "existing pair must succeed silently")

	batches, err := store.BatchesForTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestDeleteUser_CascadesAssignments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	require.NoError(t, store.DeleteUser(ctx, teacher.ID))

	teachers, err := store.TeachersForBatch(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

func TestDeleteBatch_CascadesAssignments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	require.NoError(t, store.DeleteBatch(ctx, "X"))

	batches, err := store.BatchesForTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestRemoveAssignment_UnknownPairIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.RemoveAssignment(context.Background(), 999, "nope"))
}

// =============================================================================
// ROLE-SCOPED LISTING
// =============================================================================

func TestListStudentsForRole(t *testing.T) {
	// Roster: batches X and Y; teacher t1 assigned only to X.
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustBatch(t, store, "Y", "Y")
	mustStudent(t, store, "1", "Zara", "X")
	mustStudent(t, store, "2", "Alan", "X")
	mustStudent(t, store, "3", "Mia", "Y")
	mustStudent(t, store, "4", "Omar", "")

	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	t.Run("batch teacher sees only assigned batches, name ascending", func(t *testing.T) {
		students, err := store.ListStudentsForRole(ctx, teacher.ID, roster.RoleBatchTeacher)
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, "Alan", students[0].Name)
		assert.Equal(t, "Zara", students[1].Name)
		for _, st := range students {
			assert.Equal(t, "X", st.BatchRef())
		}
	})

	t.Run("admin sees everyone", func(t *testing.T) {
		students, err := store.ListStudentsForRole(ctx, 0, roster.RoleAdmin)
		require.NoError(t, err)
		assert.Len(t, students, 4)
	})

	t.Run("attendance teacher sees everyone", func(t *testing.T) {
		students, err := store.ListStudentsForRole(ctx, teacher.ID, roster.RoleAttendanceTeacher)
		require.NoError(t, err)
		assert.Len(t, students, 4)
	})

	t.Run("unknown role sees nothing", func(t *testing.T) {
		students, err := store.ListStudentsForRole(ctx, teacher.ID, roster.Role("Janitor"))
		require.NoError(t, err)
		assert.Empty(t, students)
	})
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestMarkAttendance_LastWriteWins(t *testing.T) {
	// GIVEN: a student marked Present for a day
	// WHEN: the same day is re-marked Absent
	// THEN: exactly one record remains, Absent, with the later timestamp

	store := newTestStore(t)
	ctx := context.Background()

	mustStudent(t, store, "1", "A", "")

	first := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	second := time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

	require.NoError(t, store.MarkAttendance(ctx, "1", "2025-03-10", attendance.StatusPresent, first))
	require.NoError(t, store.MarkAttendance(ctx, "1", "2025-03-10", attendance.StatusAbsent, second))

	entries, err := store.AttendanceByDate(ctx, "2025-03-10", 0, roster.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.StatusAbsent, entries[0].Status)
	assert.True(t, entries[0].UpdatedAt.Equal(second))
}

func TestMarkAttendance_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	mustStudent(t, store, "1", "A", "")

	assert.Error(t, store.MarkAttendance(ctx, "1", "2025-03-10", attendance.Status("Late"), time.Now()))
	assert.Error(t, store.MarkAttendance(ctx, "1", "10/03/2025", attendance.StatusPresent, time.Now()))

	err := store.MarkAttendance(ctx, "ghost", "2025-03-10", attendance.StatusPresent, time.Now())
	assert.ErrorIs(t, err, roster.ErrStudentMissing)
}

func TestAttendanceByDate_BatchTeacherScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustBatch(t, store, "Y", "Y")
	mustStudent(t, store, "1", "A", "X")
	mustStudent(t, store, "2", "B", "Y")
	mustMark(t, store, "1", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "2", "2025-03-10", attendance.StatusPresent)

	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	entries, err := store.AttendanceByDate(ctx, "2025-03-10", teacher.ID, roster.RoleBatchTeacher)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].StudentPRN)
}

// =============================================================================
// SUMMARY (explicit records only - unmarked is neither present nor absent)
// =============================================================================

func TestSummaryForDate_UnmarkedExcludedFromBothCounts(t *testing.T) {
	// 5 students; 3 Present, 1 Absent, 1 unmarked.
	store := newTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"A", "B", "C", "D", "E"} {
		mustStudent(t, store, string(rune('1'+i)), name, "")
	}
	mustMark(t, store, "1", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "2", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "3", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "4", "2025-03-10", attendance.StatusAbsent)

	sum := store.SummaryForDate(ctx, "2025-03-10", 0, roster.RoleAdmin)
	assert.Equal(t, attendance.Summary{Total: 5, Present: 3, Absent: 1}, sum)
	assert.Equal(t, 1, sum.Unmarked())
}

func TestSummaryForDate_BatchTeacherRestricted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustBatch(t, store, "Y", "Y")
	mustStudent(t, store, "1", "A", "X")
	mustStudent(t, store, "2", "B", "X")
	mustStudent(t, store, "3", "C", "Y")
	mustMark(t, store, "1", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "3", "2025-03-10", attendance.StatusPresent)

	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	sum := store.SummaryForDate(ctx, "2025-03-10", teacher.ID, roster.RoleBatchTeacher)
	assert.Equal(t, attendance.Summary{Total: 2, Present: 1, Absent: 0}, sum)
}

func TestSummaryForDate_EmptyStoreIsGenuinelyZero(t *testing.T) {
	// Zero counts from an empty roster are distinguishable from the
	// error fallback only by separately checking the student count.
	store := newTestStore(t)
	ctx := context.Background()

	sum := store.SummaryForDate(ctx, "2025-03-10", 0, roster.RoleAdmin)
	assert.Equal(t, attendance.Summary{}, sum)

	prns, err := store.StudentPRNs(ctx)
	require.NoError(t, err)
	assert.Empty(t, prns)
}

func TestSummaryForDate_UnknownRoleZero(t *testing.T) {
	store := newTestStore(t)
	mustStudent(t, store, "1", "A", "")

	sum := store.SummaryForDate(context.Background(), "2025-03-10", 0, roster.Role(""))
	assert.Equal(t, attendance.Summary{}, sum)
}

// =============================================================================
// ABSENCE (absent-or-unmarked)
// =============================================================================

func TestListAbsent_IncludesUnmarked(t *testing.T) {
	// GIVEN: three students in a batch - Present, Absent, unmarked
	// THEN: the absence list holds exactly the Absent and unmarked ones

	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustStudent(t, store, "1", "Ana", "X")
	mustStudent(t, store, "2", "Ben", "X")
	mustStudent(t, store, "3", "Cleo", "X")
	mustMark(t, store, "1", "2025-03-10", attendance.StatusPresent)
	mustMark(t, store, "2", "2025-03-10", attendance.StatusAbsent)

	absent, err := store.ListAbsent(ctx, "2025-03-10", "X")
	require.NoError(t, err)
	require.Len(t, absent, 2)

	assert.Equal(t, "2", absent[0].PRN)
	assert.True(t, absent[0].Marked, "explicitly marked absent")
	assert.Equal(t, "3", absent[1].PRN)
	assert.False(t, absent[1].Marked, "unmarked treated as absent")
}

func TestListAbsentForRole_BatchTeacherScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustBatch(t, store, "Y", "Y")
	mustStudent(t, store, "1", "A", "X")
	mustStudent(t, store, "2", "B", "Y") // unmarked, but not t1's problem

	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	absent, err := store.ListAbsentForRole(ctx, "2025-03-10", teacher.ID, roster.RoleBatchTeacher)
	require.NoError(t, err)
	require.Len(t, absent, 1)
	assert.Equal(t, "1", absent[0].PRN)

	all, err := store.ListAbsentForRole(ctx, "2025-03-10", 0, roster.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// POLICY CONSISTENCY ACROSS READS
// =============================================================================

func TestRoleScoping_ConsistentAcrossReads(t *testing.T) {
	// The same teacher/role pair must see the same student population
	// through listing, summary and absence queries.

	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustBatch(t, store, "Y", "Y")
	mustStudent(t, store, "1", "A", "X")
	mustStudent(t, store, "2", "B", "X")
	mustStudent(t, store, "3", "C", "Y")

	teacher := mustTeacher(t, store, "t1", roster.RoleBatchTeacher)
	require.NoError(t, store.AssignTeacher(ctx, teacher.ID, "X"))

	students, err := store.ListStudentsForRole(ctx, teacher.ID, roster.RoleBatchTeacher)
	require.NoError(t, err)

	sum := store.SummaryForDate(ctx, "2025-03-10", teacher.ID, roster.RoleBatchTeacher)

	absent, err := store.ListAbsentForRole(ctx, "2025-03-10", teacher.ID, roster.RoleBatchTeacher)
	require.NoError(t, err)

	assert.Equal(t, len(students), sum.Total)
	assert.Equal(t, len(students), len(absent), "nobody marked yet, so all visible students are absent-or-unmarked")
}

// =============================================================================
// FOLLOW-UPS
// =============================================================================

func TestFollowUps_AppendOnlyMultiplePerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustStudent(t, store, "1", "A", "")

	id1, err := store.AddFollowUp(ctx, attendance.FollowUp{StudentPRN: "1", Date: "2025-03-10", Remarks: "called"})
	require.NoError(t, err)
	id2, err := store.AddFollowUp(ctx, attendance.FollowUp{StudentPRN: "1", Date: "2025-03-10", ProofPath: "proofs/1.jpg"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = store.AddFollowUp(ctx, attendance.FollowUp{StudentPRN: "1", Date: "2025-03-09", Remarks: "earlier"})
	require.NoError(t, err)

	followUps, err := store.FollowUpsForStudent(ctx, "1")
	require.NoError(t, err)
	require.Len(t, followUps, 3)
	assert.Equal(t, "2025-03-10", followUps[0].Date, "newest day first")
	assert.Equal(t, "2025-03-09", followUps[2].Date)
}

func TestAddFollowUp_UnknownStudentRejected(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddFollowUp(context.Background(), attendance.FollowUp{StudentPRN: "ghost", Date: "2025-03-10"})
	assert.ErrorIs(t, err, roster.ErrStudentMissing)
}

func TestFollowUpsByDate_JoinsStudent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustBatch(t, store, "X", "X")
	mustStudent(t, store, "1", "Ana", "X")
	_, err := store.AddFollowUp(ctx, attendance.FollowUp{StudentPRN: "1", Date: "2025-03-10", Remarks: "ok"})
	require.NoError(t, err)

	details, err := store.FollowUpsByDate(ctx, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "Ana", details[0].StudentName)
	assert.Equal(t, "X", details[0].BatchID)
}

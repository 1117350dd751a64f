/*
handlers.go - HTTP handlers for the attendance engine

PURPOSE:
  Exposes the query layer, import reconciler and auth service over
  REST. Handlers parse and validate input, pull the caller's identity
  from the session claims, delegate to the store, and serialize the
  result.

ERROR HANDLING:
  - 400: body/validation problems
  - 401: missing or invalid session
  - 403: role not allowed
  - 404: lookup miss on a single resource
  - 409: constraint violations (duplicate username, missing reference)
  - 500: storage faults
  Lookup misses on list endpoints are empty arrays, not errors. The
  summary endpoint never fails: storage trouble degrades to zeros and
  is visible only in the server log.

SEE ALSO:
  - dto.go: request/response shapes
  - middleware.go: session and role gates
  - server.go: route table
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/attendance"
	"github.com/rollcall/attendance/auth"
	"github.com/rollcall/attendance/importer"
	"github.com/rollcall/attendance/roster"
	"github.com/rollcall/attendance/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Auth       *auth.Service
	Reconciler *importer.Reconciler
	Validate   *validator.Validate
	Log        *logrus.Logger
}

// NewHandler wires a handler over the given store and auth service.
func NewHandler(store *sqlite.Store, authSvc *auth.Service, log *logrus.Logger) *Handler {
	return &Handler{
		Store:      store,
		Auth:       authSvc,
		Reconciler: importer.NewReconciler(store),
		Validate:   validator.New(),
		Log:        log,
	}
}

// decodeValid decodes the JSON body into v and runs validation.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error(), nil)
		return false
	}
	return true
}

// =============================================================================
// AUTH
// =============================================================================

// Login verifies credentials and returns a session token. A miss is a
// 401, never a 500 - "no match" is a normal outcome of the lookup.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	user, err := h.Auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := h.Auth.IssueToken(*user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue session", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: userDTO(*user)})
}

// =============================================================================
// USERS
// =============================================================================

// ListTeachers returns teacher accounts for the management screen.
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teachers", err)
		return
	}

	dtos := make([]UserDTO, len(teachers))
	for i, u := range teachers {
		dtos[i] = userDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser creates an account with a hashed password.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Username, hash, roster.Role(req.Role))
	if err != nil {
		if roster.IsConstraint(err) {
			writeError(w, http.StatusConflict, "Username already exists", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, userDTO(user))
}

// DeleteUser removes an account and its assignments.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}

	if err := h.Store.DeleteUser(r.Context(), roster.UserID(id)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BATCHES
// =============================================================================

// ListBatches returns all batches by name.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = batchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveBatch upserts a batch; the id doubles as name when none given.
func (h *Handler) SaveBatch(w http.ResponseWriter, r *http.Request) {
	var req SaveBatchRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	if req.Name == "" {
		req.Name = req.ID
	}

	if err := h.Store.SaveBatch(r.Context(), roster.Batch{ID: req.ID, Name: req.Name}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save batch", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchDTO{ID: req.ID, Name: req.Name})
}

// DeleteBatch removes a batch, detaching its students.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete batch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BatchTeachers lists the teachers assigned to a batch.
func (h *Handler) BatchTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.TeachersForBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batch teachers", err)
		return
	}

	dtos := make([]UserDTO, len(teachers))
	for i, u := range teachers {
		dtos[i] = userDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// CreateAssignment links a teacher to a batch; replays succeed silently.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.Store.AssignTeacher(r.Context(), roster.UserID(req.TeacherID), req.BatchID); err != nil {
		if roster.IsConstraint(err) {
			writeError(w, http.StatusConflict, "Teacher or batch does not exist", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to assign teacher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAssignment unlinks a teacher from a batch.
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	if err := h.Store.RemoveAssignment(r.Context(), roster.UserID(req.TeacherID), req.BatchID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to remove assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TeacherBatches lists the batches assigned to a teacher.
func (h *Handler) TeacherBatches(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid teacher id", err)
		return
	}

	batches, err := h.Store.BatchesForTeacher(r.Context(), roster.UserID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list teacher batches", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = batchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENTS
// =============================================================================

// batchVisible reports whether the session caller may read the given
// batch. Full-visibility roles see every batch; a batch teacher only
// those in their assignment set; anything else sees none.
func (h *Handler) batchVisible(r *http.Request, batchID string) (bool, error) {
	claims := sessionClaims(r)
	switch roster.VisibilityFor(claims.Role) {
	case roster.VisibilityAll:
		return true, nil
	case roster.VisibilityAssigned:
		batches, err := h.Store.BatchesForTeacher(r.Context(), claims.UserID)
		if err != nil {
			return false, err
		}
		for _, b := range batches {
			if b.ID == batchID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}

// ListStudents is the role-scoped listing: what the caller sees depends
// on who they are. An explicit batch_id narrows to that batch, but
// never widens past the caller's visibility: an unassigned batch reads
// as empty, the same as the scoped queries.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	claims := sessionClaims(r)

	var students []roster.Student
	var err error
	if batchID := r.URL.Query().Get("batch_id"); batchID != "" {
		visible, verr := h.batchVisible(r, batchID)
		if verr != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list students", verr)
			return
		}
		if !visible {
			writeJSON(w, http.StatusOK, []StudentDTO{})
			return
		}
		students, err = h.Store.ListStudents(r.Context(), batchID)
	} else {
		students, err = h.Store.ListStudentsForRole(r.Context(), claims.UserID, claims.Role)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, st := range students {
		dtos[i] = studentDTO(st)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveStudent upserts one student (the manual-entry path; bulk goes
// through Import).
func (h *Handler) SaveStudent(w http.ResponseWriter, r *http.Request) {
	var req SaveStudentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	st := roster.Student{
		PRN:          req.PRN,
		Name:         req.Name,
		Email:        req.Email,
		Mobile:       req.Mobile,
		ParentMobile: req.ParentMobile,
	}
	if req.BatchID != "" {
		st.BatchID = &req.BatchID
	}

	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		if roster.IsConstraint(err) {
			writeError(w, http.StatusConflict, "Batch does not exist", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusOK, studentDTO(st))
}

// DeleteStudent removes a student and their attendance/follow-ups.
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteStudent(r.Context(), chi.URLParam(r, "prn")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StudentFollowUps lists a student's follow-up trail, newest first.
func (h *Handler) StudentFollowUps(w http.ResponseWriter, r *http.Request) {
	followUps, err := h.Store.FollowUpsForStudent(r.Context(), chi.URLParam(r, "prn"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list follow-ups", err)
		return
	}

	dtos := make([]FollowUpDTO, len(followUps))
	for i, fu := range followUps {
		dtos[i] = FollowUpDTO{
			ID:        fu.ID,
			PRN:       fu.StudentPRN,
			Date:      fu.Date,
			ProofPath: fu.ProofPath,
			Remarks:   fu.Remarks,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// MarkAttendance records one student's status for a day; re-marking the
// same day overwrites.
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req MarkAttendanceRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	err := h.Store.MarkAttendance(r.Context(), req.PRN, req.Date, attendance.Status(req.Status), time.Now())
	if err != nil {
		if roster.IsConstraint(err) {
			writeError(w, http.StatusConflict, "Student does not exist", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to mark attendance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttendanceByDate lists the explicit records for a day, scoped to the
// caller's role.
func (h *Handler) AttendanceByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := attendance.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}

	claims := sessionClaims(r)
	entries, err := h.Store.AttendanceByDate(r.Context(), date, claims.UserID, claims.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance", err)
		return
	}

	dtos := make([]AttendanceEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AttendanceEntryDTO{
			PRN:         e.StudentPRN,
			StudentName: e.StudentName,
			BatchID:     e.BatchID,
			Date:        e.Date,
			Status:      string(e.Status),
			UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Summary returns the headline counts for a day. Always 200: storage
// trouble degrades to zeros (logged server-side), keeping the dashboard
// up.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := attendance.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}

	claims := sessionClaims(r)
	sum := h.Store.SummaryForDate(r.Context(), date, claims.UserID, claims.Role)
	writeJSON(w, http.StatusOK, summaryDTO(sum))
}

// Absent lists absent-or-unmarked students for a day: within one batch
// when batch_id is given, otherwise across the caller's visibility.
// The batch narrowing is subject to the same visibility check as the
// student listing.
func (h *Handler) Absent(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := attendance.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}

	var absent []attendance.AbsentStudent
	var err error
	if batchID := r.URL.Query().Get("batch_id"); batchID != "" {
		visible, verr := h.batchVisible(r, batchID)
		if verr != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list absent students", verr)
			return
		}
		if !visible {
			writeJSON(w, http.StatusOK, []AbsentStudentDTO{})
			return
		}
		absent, err = h.Store.ListAbsent(r.Context(), date, batchID)
	} else {
		claims := sessionClaims(r)
		absent, err = h.Store.ListAbsentForRole(r.Context(), date, claims.UserID, claims.Role)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list absent students", err)
		return
	}

	dtos := make([]AbsentStudentDTO, len(absent))
	for i, a := range absent {
		dtos[i] = AbsentStudentDTO{PRN: a.PRN, Name: a.Name, BatchID: a.BatchID, Marked: a.Marked}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FOLLOW-UPS
// =============================================================================

// AddFollowUp appends a follow-up record. The proof file itself is
// stored by an external collaborator; only its path lands here.
func (h *Handler) AddFollowUp(w http.ResponseWriter, r *http.Request) {
	var req AddFollowUpRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	id, err := h.Store.AddFollowUp(r.Context(), attendance.FollowUp{
		StudentPRN: req.PRN,
		Date:       req.Date,
		ProofPath:  req.ProofPath,
		Remarks:    req.Remarks,
	})
	if err != nil {
		if roster.IsConstraint(err) {
			writeError(w, http.StatusConflict, "Student does not exist", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to add follow-up", err)
		return
	}

	writeJSON(w, http.StatusCreated, FollowUpDTO{
		ID: id, PRN: req.PRN, Date: req.Date, ProofPath: req.ProofPath, Remarks: req.Remarks,
	})
}

// FollowUpsByDate lists the follow-ups recorded for a day with their
// students, for the review screen.
func (h *Handler) FollowUpsByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := attendance.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date", err)
		return
	}

	details, err := h.Store.FollowUpsByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list follow-ups", err)
		return
	}

	dtos := make([]FollowUpDTO, len(details))
	for i, d := range details {
		dtos[i] = FollowUpDTO{
			ID:          d.ID,
			PRN:         d.StudentPRN,
			Date:        d.Date,
			ProofPath:   d.ProofPath,
			Remarks:     d.Remarks,
			StudentName: d.StudentName,
			BatchID:     d.BatchID,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// IMPORT
// =============================================================================

// Import runs the bulk roster import. Two input shapes:
//   - multipart form with a "file" field holding a CSV
//   - JSON body with pre-parsed rows (the Excel decoder's output)
//
// Always 200 with a per-row report when the run itself could start;
// bad rows are diagnostics, not failures.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var rows []importer.Row

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing file upload", err)
			return
		}
		defer file.Close()

		rows, err = importer.ReadCSV(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Failed to parse CSV", err)
			return
		}
	} else {
		var req ImportRequest
		if !h.decodeValid(w, r, &req) {
			return
		}
		rows = make([]importer.Row, len(req.Rows))
		for i, dto := range req.Rows {
			rows[i] = dto.row()
		}
	}

	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "The file appears to be empty", nil)
		return
	}

	report, err := h.Reconciler.Reconcile(r.Context(), rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Import failed to start", err)
		return
	}

	writeJSON(w, http.StatusOK, importReportDTO(report))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

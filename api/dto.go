/*
dto.go - Request/response shapes for the REST API

Request DTOs carry validator tags; handlers run them through the shared
validator before touching the store. Response DTOs never expose
password hashes.
*/
package api

import (
	"github.com/rollcall/attendance/attendance"
	"github.com/rollcall/attendance/importer"
	"github.com/rollcall/attendance/roster"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string  `json:"token"`
	User  UserDTO `json:"user"`
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=Admin AttendanceTeacher BatchTeacher"`
}

func userDTO(u roster.User) UserDTO {
	return UserDTO{ID: int64(u.ID), Username: u.Username, Role: string(u.Role)}
}

// =============================================================================
// BATCHES AND ASSIGNMENTS
// =============================================================================

type BatchDTO struct {
	ID   string `json:"batch_id"`
	Name string `json:"batch_name"`
}

type SaveBatchRequest struct {
	ID   string `json:"batch_id" validate:"required"`
	Name string `json:"batch_name"` // defaults to the id when empty
}

type AssignmentRequest struct {
	TeacherID int64  `json:"teacher_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
}

func batchDTO(b roster.Batch) BatchDTO {
	return BatchDTO{ID: b.ID, Name: b.Name}
}

// =============================================================================
// STUDENTS
// =============================================================================

type StudentDTO struct {
	PRN          string `json:"prn"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Mobile       string `json:"mobile,omitempty"`
	ParentMobile string `json:"parent_mobile,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
}

type SaveStudentRequest struct {
	PRN          string `json:"prn" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Mobile       string `json:"mobile"`
	ParentMobile string `json:"parent_mobile"`
	BatchID      string `json:"batch_id"`
}

func studentDTO(st roster.Student) StudentDTO {
	return StudentDTO{
		PRN:          st.PRN,
		Name:         st.Name,
		Email:        st.Email,
		Mobile:       st.Mobile,
		ParentMobile: st.ParentMobile,
		BatchID:      st.BatchRef(),
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type MarkAttendanceRequest struct {
	PRN    string `json:"prn" validate:"required"`
	Date   string `json:"date" validate:"required"`
	Status string `json:"status" validate:"required,oneof=Present Absent"`
}

type AttendanceEntryDTO struct {
	PRN         string `json:"prn"`
	StudentName string `json:"student_name"`
	BatchID     string `json:"batch_id,omitempty"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at"`
}

type SummaryDTO struct {
	Total    int    `json:"total"`
	Present  int    `json:"present"`
	Absent   int    `json:"absent"`
	Unmarked int    `json:"unmarked"`
	Rate     string `json:"rate"` // present percentage, two decimals
}

type AbsentStudentDTO struct {
	PRN     string `json:"prn"`
	Name    string `json:"name"`
	BatchID string `json:"batch_id,omitempty"`
	Marked  bool   `json:"marked"`
}

func summaryDTO(s attendance.Summary) SummaryDTO {
	return SummaryDTO{
		Total:    s.Total,
		Present:  s.Present,
		Absent:   s.Absent,
		Unmarked: s.Unmarked(),
		Rate:     s.Rate().String(),
	}
}

// =============================================================================
// FOLLOW-UPS
// =============================================================================

type AddFollowUpRequest struct {
	PRN       string `json:"prn" validate:"required"`
	Date      string `json:"date" validate:"required"`
	ProofPath string `json:"proof_path"`
	Remarks   string `json:"remarks"`
}

type FollowUpDTO struct {
	ID          int64  `json:"id"`
	PRN         string `json:"prn"`
	Date        string `json:"date"`
	ProofPath   string `json:"proof_path,omitempty"`
	Remarks     string `json:"remarks,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	BatchID     string `json:"batch_id,omitempty"`
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportRequest carries pre-parsed rows (the Excel path); the CSV path
// uploads the file itself as multipart form data instead.
type ImportRequest struct {
	Rows []ImportRowDTO `json:"rows" validate:"required,min=1"`
}

type ImportRowDTO struct {
	PRN          string `json:"PRN"`
	Name         string `json:"Name"`
	Email        string `json:"Email"`
	Mobile       string `json:"Mobile"`
	ParentMobile string `json:"ParentMobile"`
	BatchID      string `json:"BatchID"`
}

type ImportReportDTO struct {
	Success int                 `json:"success"`
	Errors  []importer.RowError `json:"errors"`
	Batches []string            `json:"batches"`
}

func (r ImportRowDTO) row() importer.Row {
	return importer.Row{
		PRN:          r.PRN,
		Name:         r.Name,
		Email:        r.Email,
		Mobile:       r.Mobile,
		ParentMobile: r.ParentMobile,
		BatchID:      r.BatchID,
	}
}

func importReportDTO(rep importer.Report) ImportReportDTO {
	errs := rep.Errors
	if errs == nil {
		errs = []importer.RowError{}
	}
	return ImportReportDTO{
		Success: rep.Success,
		Errors:  errs,
		Batches: rep.BatchIDs(),
	}
}

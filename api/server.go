/*
server.go - HTTP route table for the attendance engine

Three tiers of access:
  - public: login only
  - session: read paths and attendance marking, scoped per role by the
    handlers themselves
  - admin: roster management, account management and bulk import
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the chi router over the handler set.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.sessionMiddleware)

			r.Get("/students", h.ListStudents)
			r.Get("/students/{prn}/followups", h.StudentFollowUps)

			r.Post("/attendance", h.MarkAttendance)
			r.Get("/attendance", h.AttendanceByDate)
			r.Get("/attendance/summary", h.Summary)
			r.Get("/attendance/absent", h.Absent)

			r.Post("/followups", h.AddFollowUp)
			r.Get("/followups", h.FollowUpsByDate)

			r.Group(func(r chi.Router) {
				r.Use(h.adminOnly)

				r.Get("/teachers", h.ListTeachers)
				r.Get("/teachers/{id}/batches", h.TeacherBatches)
				r.Post("/users", h.CreateUser)
				r.Delete("/users/{id}", h.DeleteUser)

				r.Get("/batches", h.ListBatches)
				r.Post("/batches", h.SaveBatch)
				r.Delete("/batches/{id}", h.DeleteBatch)
				r.Get("/batches/{id}/teachers", h.BatchTeachers)

				r.Post("/assignments", h.CreateAssignment)
				r.Delete("/assignments", h.DeleteAssignment)

				r.Post("/students", h.SaveStudent)
				r.Delete("/students/{prn}", h.DeleteStudent)

				r.Post("/import", h.Import)
			})
		})
	})

	return r
}

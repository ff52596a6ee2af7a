// routes.go — таблица маршрутов API.
package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes регистрирует все маршруты API на роутере.
// Каждый маршрут описан в встроенном OpenAPI документе; соответствие проверяется тестом.
func RegisterRoutes(r chi.Router, h *APIHandler) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/openapi.json", h.GetOpenAPI)
		r.Get("/workflow/states", h.GetWorkflowStates)

		r.Post("/operations/{operation_id}/programs", h.CreateProgram)

		r.Get("/programs", h.ListPrograms)
		r.Route("/programs/{program_id}", func(r chi.Router) {
			r.Get("/", h.GetProgram)
			r.Patch("/", h.UpdateProgram)
			r.Delete("/", h.DeleteProgram)
			r.Get("/download", h.DownloadProgram)
			r.Post("/rollback", h.RollbackProgram)
			r.Get("/compare", h.CompareVersions)

			r.Get("/revisions", h.ListRevisions)
			r.Post("/revisions", h.UploadRevision)
			r.Route("/revisions/{revision_id}", func(r chi.Router) {
				r.Get("/", h.GetRevision)
				r.Get("/content", h.GetRevisionContent)
				r.Get("/download", h.DownloadRevision)
				r.Get("/transitions", h.ListTransitions)
				r.Post("/transitions", h.TransitionRevision)
			})
		})

		r.Get("/revisions/compare", h.CompareRevisions)
	})
}

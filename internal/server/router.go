package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/noesis-ai/noesis/internal/api"
	"github.com/noesis-ai/noesis/internal/api/handlers"
	"github.com/noesis-ai/noesis/internal/api/middleware"
)

type RouterConfig struct {
	EntryHandler     *handlers.EntryHandler
	RetrievalHandler *handlers.RetrievalHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	AdminHandler     *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor)

		r.Route("/entries", func(r chi.Router) {
			r.Post("/", cfg.EntryHandler.Create)
			r.Get("/", cfg.EntryHandler.List)
			r.Post("/status", cfg.EntryHandler.BulkStatus)
			r.Post("/archive", cfg.EntryHandler.Archive)
			r.Get("/{id}", cfg.EntryHandler.Get)
			r.Patch("/{id}", cfg.EntryHandler.Update)
			r.Get("/{id}/document", cfg.EntryHandler.DocumentURL)
			r.Post("/{id}/restore", cfg.EntryHandler.Restore)
			r.Post("/{id}/approval", cfg.EntryHandler.SetApproval)
			r.Get("/{id}/versions", cfg.EntryHandler.ListVersions)
			r.Post("/{id}/versions/{versionID}/restore", cfg.EntryHandler.RestoreVersion)
		})

		r.Get("/analytics/summary", cfg.AnalyticsHandler.Summary)
		r.Post("/admin/reindex", cfg.AdminHandler.Reindex)
	})

	// Retrieval is called service-to-service by the chat pipeline;
	// the end user identity rides in the request body.
	r.Post("/retrieve", cfg.RetrievalHandler.Retrieve)

	return r
}

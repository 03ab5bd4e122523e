package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", app.UploadHandler)
		r.Post("/search", app.SearchHandler)

		r.Route("/media", func(r chi.Router) {
			r.Get("/", app.ListMediaHandler)
			r.Get("/{id}", app.GetMediaHandler)
			r.Get("/{id}/status", app.StatusHandler)
			r.Get("/{id}/stream", app.StreamMediaHandler)
			r.Delete("/{id}", app.DeleteMediaHandler)
		})
	})

	return r
}

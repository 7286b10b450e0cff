package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/kdimtricp/vtrack/internal/stream"
	"github.com/kdimtricp/vtrack/internal/storage"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", app.HealthHandler)

		// Uploads and camera starts are expensive; everything else is cheap.
		r.Group(func(r chi.Router) {
			if app.RateLimit > 0 {
				r.Use(httprate.Limit(app.RateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(app.rateLimited),
				))
			}
			r.Post("/detect/image", app.DetectImageHandler)
			r.Post("/detect/video", app.DetectVideoHandler)
			r.Post("/stream/start", app.StartStreamHandler)
		})

		r.Get("/jobs", app.ListJobsHandler)
		r.Get("/detect/video/status/{id}", app.VideoStatusHandler)
		r.Get("/detect/video/status/{id}/events", app.VideoStatusEventsHandler)

		r.Post("/stream/stop/{id}", app.StopStreamHandler)
		r.Get("/stream/{id}/detections", app.StreamDetectionsHandler)
		r.Get("/streams", app.ListStreamsHandler)

		r.Get("/settings", app.GetSettingsHandler)
		r.Put("/settings", app.UpdateSettingsHandler)
	})

	r.Get(stream.Namespace, app.Hub.Handler(stream.Namespace))

	fileServer := http.FileServer(http.Dir(app.ResultsDir))
	r.Handle(storage.ResultsURLPrefix+"*", http.StripPrefix(storage.ResultsURLPrefix, fileServer))

	return r
}

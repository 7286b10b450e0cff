package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/vtrack/internal/stream"
)

func (app *App) StartStreamHandler(w http.ResponseWriter, r *http.Request) {
	conf, err := app.confThreshold(r)
	if err != nil {
		app.renderError(w, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}

	s, err := app.Streams.Start(conf)
	if err != nil {
		app.Log.Errorf("Error starting stream: %v", err)
		app.renderError(w, http.StatusInternalServerError, CodeStreamError, err.Error())
		return
	}

	app.renderSuccess(w, map[string]any{
		"stream_id":  s.ID(),
		"stream_url": "ws://" + r.Host + stream.Namespace,
	})
}

func (app *App) StopStreamHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Streams.Stop(id); err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			app.renderError(w, http.StatusNotFound, CodeStreamError, "Stream "+id+" not found")
			return
		}
		app.renderError(w, http.StatusInternalServerError, CodeStreamError, err.Error())
		return
	}

	app.renderSuccess(w, map[string]any{
		"stream_id": id,
		"status":    "stopped",
	})
}

type streamInfo struct {
	StreamID      string    `json:"stream_id"`
	State         string    `json:"state"`
	ConfThreshold float64   `json:"conf_threshold"`
	StartedAt     time.Time `json:"started_at"`
	stream.Stats
}

func (app *App) ListStreamsHandler(w http.ResponseWriter, r *http.Request) {
	list := app.Streams.Registry.List()
	infos := make([]streamInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, streamInfo{
			StreamID:      s.ID(),
			State:         s.State().String(),
			ConfThreshold: s.ConfThreshold(),
			StartedAt:     s.StartedAt(),
			Stats:         s.Stats(),
		})
	}

	app.renderSuccess(w, map[string]any{
		"streams":   infos,
		"observers": app.Hub.Stats(),
	})
}

func (app *App) StreamDetectionsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detections, ok := app.Streams.Registry.LatestDetections(id)
	if !ok {
		app.renderError(w, http.StatusNotFound, CodeStreamError, "Invalid stream ID: "+id)
		return
	}

	app.renderSuccess(w, stream.DetectionsMessage{
		StreamID:   id,
		Detections: detections,
		Timestamp:  stream.Timestamp(time.Now()),
	})
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// VideoStatusEventsHandler streams job status as server-sent events. An event
// is sent for the current state and again on every change until the job
// finishes or the client goes away.
func (app *App) VideoStatusEventsHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.lookupJob(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientGone := r.Context().Done()

	for {
		// Take the channel before the state so a change in between is not missed.
		changed := job.Changed()
		st := job.State()

		data, err := json.Marshal(newJobStatus(st))
		if err != nil {
			app.Log.Errorf("Error marshaling job status: %v", err)
			return
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
		flusher.Flush()

		if st.Terminal() {
			return
		}

		select {
		case <-changed:
		case <-clientGone:
			return
		}
	}
}

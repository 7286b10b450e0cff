package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kdimtricp/vtrack/internal/models"
)

// JobHistory lists recorded jobs, newest first.
type JobHistory interface {
	List(ctx context.Context, limit int) ([]*models.Job, error)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

func (app *App) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			app.renderError(w, http.StatusBadRequest, CodeInvalidParameter, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	list := []*models.Job{}
	if app.History != nil {
		jobs, err := app.History.List(r.Context(), limit)
		if err != nil {
			app.Log.Errorf("Failed to list jobs: %v", err)
			app.renderError(w, http.StatusInternalServerError, CodeInternalError, "Failed to list jobs")
			return
		}
		if jobs != nil {
			list = jobs
		}
	}

	app.renderSuccess(w, map[string]any{"jobs": list})
}

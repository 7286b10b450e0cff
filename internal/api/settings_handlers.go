package api

import (
	"encoding/json"
	"net/http"
)

func (app *App) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	app.renderSuccess(w, app.Settings.Get())
}

// settingsUpdate carries the fields to change; omitted fields keep their value.
type settingsUpdate struct {
	ConfThreshold *float64 `json:"conf_threshold"`
	TrailLength   *int     `json:"trail_length"`
	FadeSteps     *int     `json:"fade_steps"`
}

func (app *App) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		app.renderError(w, http.StatusBadRequest, CodeInvalidSettings, "Invalid JSON body")
		return
	}

	v := app.Settings.Get()
	if req.ConfThreshold != nil {
		v.ConfThreshold = *req.ConfThreshold
	}
	if req.TrailLength != nil {
		v.TrailLength = *req.TrailLength
	}
	if req.FadeSteps != nil {
		v.FadeSteps = *req.FadeSteps
	}

	if err := app.Settings.Update(v); err != nil {
		app.renderError(w, http.StatusBadRequest, CodeInvalidSettings, err.Error())
		return
	}
	app.Log.Infof("Settings updated: %+v", v)
	app.renderSuccess(w, app.Settings.Get())
}

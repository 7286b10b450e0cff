package api

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned in the error envelope.
const (
	CodeMissingFile      = "missing_file"
	CodeInvalidFile      = "invalid_file"
	CodeInvalidFileType  = "invalid_file_type"
	CodeFileTooLarge     = "file_too_large"
	CodeInvalidParameter = "invalid_parameter"
	CodeProcessingError  = "processing_error"
	CodeStatusError      = "status_error"
	CodeStreamError      = "stream_error"
	CodeInvalidSettings  = "invalid_settings"
	CodeRateLimited      = "rate_limited"
	CodeInternalError    = "internal_error"
)

func (app *App) renderSuccess(w http.ResponseWriter, data any) {
	app.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (app *App) renderError(w http.ResponseWriter, status int, code, message string) {
	app.writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}

func (app *App) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		app.Log.Warnf("Failed to write response: %v", err)
	}
}

func (app *App) rateLimited(w http.ResponseWriter, r *http.Request) {
	app.renderError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, try again later")
}

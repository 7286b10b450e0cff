package api

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/vtrack/internal/jobs"
	"github.com/kdimtricp/vtrack/internal/pipeline"
	"github.com/kdimtricp/vtrack/internal/settings"
	"github.com/kdimtricp/vtrack/internal/storage"
	"github.com/kdimtricp/vtrack/internal/stream"
	_ "golang.org/x/image/bmp"
)

type App struct {
	Log           logs.Log
	Storage       storage.Storage
	Processor     *pipeline.Processor
	Jobs          *jobs.Manager
	History       JobHistory
	Streams       *stream.Manager
	Hub           *stream.Hub
	Settings      *settings.Settings
	MaxUploadSize int64
	RateLimit     int
	ResultsDir    string
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	app.renderSuccess(w, map[string]any{
		"status":         "healthy",
		"active_streams": app.Streams.Registry.Len(),
	})
}

// upload is a validated multipart file.
type upload struct {
	file   multipart.File
	header *multipart.FileHeader
}

// readUpload extracts form field from a multipart request and checks its
// extension with allowed. It writes the error response itself and returns
// false on failure.
func (app *App) readUpload(w http.ResponseWriter, r *http.Request, field string, allowed func(string) bool) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			app.renderError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
				"File too large, the limit is "+humanize.Bytes(uint64(app.MaxUploadSize)))
			return nil, false
		}
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		app.renderError(w, http.StatusBadRequest, CodeMissingFile, "No "+field+" file provided")
		return nil, false
	}
	if header.Filename == "" {
		file.Close()
		app.renderError(w, http.StatusBadRequest, CodeInvalidFile, "No selected file")
		return nil, false
	}
	if !allowed(header.Filename) {
		file.Close()
		app.renderError(w, http.StatusBadRequest, CodeInvalidFileType, "File type not supported")
		return nil, false
	}
	return &upload{file: file, header: header}, true
}

// confThreshold reads the optional conf_threshold form value, falling back to
// the current setting.
func (app *App) confThreshold(r *http.Request) (float64, error) {
	v := r.FormValue("conf_threshold")
	if v == "" {
		return app.Settings.ConfThreshold(), nil
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil || c < 0 || c > 1 {
		return 0, errors.New("conf_threshold must be a number between 0 and 1")
	}
	return c, nil
}

func (app *App) DetectImageHandler(w http.ResponseWriter, r *http.Request) {
	up, ok := app.readUpload(w, r, "image", storage.IsAllowedImage)
	if !ok {
		return
	}
	defer up.file.Close()

	conf, err := app.confThreshold(r)
	if err != nil {
		app.renderError(w, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}

	filename, err := app.Storage.SaveFile(up.file, storage.FileInfo{
		Filename:    up.header.Filename,
		ContentType: up.header.Header.Get("Content-Type"),
		Size:        up.header.Size,
		Prefix:      "img",
	})
	if err != nil {
		app.Log.Errorf("Failed to save image upload: %v", err)
		app.renderError(w, http.StatusInternalServerError, CodeProcessingError, "Failed to save file")
		return
	}

	saved, err := app.Storage.OpenFile(filename)
	if err != nil {
		app.renderError(w, http.StatusInternalServerError, CodeProcessingError, err.Error())
		return
	}
	img, _, err := image.Decode(saved)
	saved.Close()
	if err != nil {
		app.discardUpload(filename)
		app.renderError(w, http.StatusBadRequest, CodeInvalidFile, "Could not read uploaded image")
		return
	}

	result, err := app.Processor.ProcessImage(r.Context(), img, filename, conf)
	if err != nil {
		app.Log.Errorf("Error processing image %v: %v", filename, err)
		app.renderError(w, http.StatusInternalServerError, CodeProcessingError, err.Error())
		return
	}
	app.renderSuccess(w, result)
}

// discardUpload removes a stored upload that turned out to be unusable.
func (app *App) discardUpload(filename string) {
	if err := app.Storage.DeleteFile(filename); err != nil {
		app.Log.Warnf("Failed to remove rejected upload %v: %v", filename, err)
	}
}

func (app *App) DetectVideoHandler(w http.ResponseWriter, r *http.Request) {
	up, ok := app.readUpload(w, r, "video", storage.IsAllowedVideo)
	if !ok {
		return
	}
	defer up.file.Close()

	conf, err := app.confThreshold(r)
	if err != nil {
		app.renderError(w, http.StatusBadRequest, CodeInvalidParameter, err.Error())
		return
	}
	saveOutput := true
	if v := r.FormValue("save_output"); v != "" {
		saveOutput = strings.EqualFold(v, "true")
	}

	filename, err := app.Storage.SaveFile(up.file, storage.FileInfo{
		Filename:    up.header.Filename,
		ContentType: up.header.Header.Get("Content-Type"),
		Size:        up.header.Size,
		Prefix:      "video",
	})
	if err != nil {
		app.Log.Errorf("Failed to save video upload: %v", err)
		app.renderError(w, http.StatusInternalServerError, CodeProcessingError, "Failed to save file")
		return
	}

	job := app.Processor.SubmitVideo(pipeline.VideoRequest{
		Path:          app.Storage.Path(filename),
		Filename:      filename,
		ConfThreshold: conf,
		SaveOutput:    saveOutput,
	})

	app.renderSuccess(w, map[string]any{
		"task_id": job.ID,
		"status":  "processing",
	})
}

// jobStatus is the polling view of a job.
type jobStatus struct {
	Status          string     `json:"status"`
	Progress        *float64   `json:"progress,omitempty"`
	FramesProcessed *int       `json:"frames_processed,omitempty"`
	Result          *jobResult `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type jobResult struct {
	Status          string  `json:"status"`
	ProcessingTime  float64 `json:"processing_time"`
	FramesProcessed int     `json:"frames_processed"`
	OutputVideoURL  *string `json:"output_video_url"`
}

func newJobStatus(st jobs.State) jobStatus {
	progress := func(p float64) *float64 { return &p }
	switch s := st.(type) {
	case jobs.InProgress:
		return jobStatus{Status: "processing", Progress: progress(s.Progress), FramesProcessed: &s.FramesProcessed}
	case jobs.Completed:
		return jobStatus{
			Status:   string(jobs.StatusCompleted),
			Progress: progress(100),
			Result: &jobResult{
				Status:          string(jobs.StatusCompleted),
				ProcessingTime:  s.Result.ProcessingTime.Seconds(),
				FramesProcessed: s.Result.FramesProcessed,
				OutputVideoURL:  s.Result.OutputURL,
			},
		}
	case jobs.Failed:
		return jobStatus{Status: string(jobs.StatusFailed), Error: s.Err.Error()}
	default:
		return jobStatus{Status: string(jobs.StatusPending), Progress: progress(0)}
	}
}

func (app *App) VideoStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := app.lookupJob(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	app.renderSuccess(w, newJobStatus(job.State()))
}

// lookupJob renders 404 for unknown ids and 500 when history cannot be read.
func (app *App) lookupJob(w http.ResponseWriter, id string) (*jobs.Job, bool) {
	job, err := app.Jobs.Get(id)
	if errors.Is(err, jobs.ErrNotFound) {
		app.renderError(w, http.StatusNotFound, CodeStatusError, "Task with ID "+id+" not found")
		return nil, false
	}
	if err != nil {
		app.Log.Errorf("Failed to load job %v: %v", id, err)
		app.renderError(w, http.StatusInternalServerError, CodeInternalError, "Failed to load task status")
		return nil, false
	}
	return job, true
}

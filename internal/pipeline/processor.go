package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/jobs"
	"github.com/kdimtricp/vtrack/internal/settings"
)

// JobKindVideo labels batch video jobs in the job history.
const JobKindVideo = "video"

// Results locates processed artifacts.
type Results interface {
	ResultPath(name string) string
	ResultURL(name string) string
}

// Processor builds batch jobs for uploaded files and submits them to the job
// manager.
type Processor struct {
	Log        logs.Log
	Jobs       *jobs.Manager
	Trackers   detect.Factory
	Settings   *settings.Settings
	Results    Results
	OpenFile   func(path string) frame.Source
	OpenWriter SinkOpener
}

// VideoRequest is a validated, saved upload.
type VideoRequest struct {
	Path          string
	Filename      string
	ConfThreshold float64
	SaveOutput    bool
}

// ResultName is the artifact name for a processed upload.
func ResultName(filename string) string {
	return "result_" + filename
}

// SubmitVideo queues a batch job for the video at req.Path and returns at once.
func (p *Processor) SubmitVideo(req VideoRequest) *jobs.Job {
	task := func(ctx context.Context, jobID string, report jobs.ProgressFunc) (jobs.Result, error) {
		b := &BatchJob{
			Log:           p.Log,
			Source:        p.OpenFile(req.Path),
			Tracker:       p.Trackers.Session(jobID),
			Annotator:     annotate.NewFromSettings(p.Settings),
			ConfThreshold: req.ConfThreshold,
		}
		if req.SaveOutput {
			name := ResultName(req.Filename)
			b.Output = &Output{
				Path: p.Results.ResultPath(name),
				URL:  p.Results.ResultURL(name),
				Open: p.OpenWriter,
			}
		}
		return b.Run(ctx, report)
	}
	return p.Jobs.Submit(JobKindVideo, req.Filename, task)
}

// ImageResult is the outcome of a synchronous image detection.
type ImageResult struct {
	Detections        []detect.TrackedObject `json:"detections"`
	ProcessedImageURL string                 `json:"processed_image_url"`
	ProcessingTime    float64                `json:"processing_time"`
}

// ProcessImage detects objects in img, saves the annotated picture next to the
// other results and returns the detections. It runs in the caller's goroutine.
func (p *Processor) ProcessImage(ctx context.Context, img image.Image, filename string, confThreshold float64) (*ImageResult, error) {
	start := time.Now()
	name := ResultName(filename)

	var detections []detect.TrackedObject
	b := &BatchJob{
		Log:           p.Log,
		Source:        frame.NewMemorySource(frame.Info{}, frame.New(img, 0)),
		Tracker:       p.Trackers.Session("image-" + uuid.New().String()),
		Annotator:     annotate.NewFromSettings(p.Settings),
		ConfThreshold: confThreshold,
		Output: &Output{
			Path: p.Results.ResultPath(name),
			URL:  p.Results.ResultURL(name),
			Open: func(path string, info frame.Info) (frame.Sink, error) {
				return newImageSink(path), nil
			},
		},
		OnFrame: func(index int, objects []detect.TrackedObject) {
			detections = objects
		},
	}

	result, err := b.Run(ctx, nil)
	if err != nil {
		return nil, err
	}
	if result.FramesProcessed != 1 {
		return nil, fmt.Errorf("expected one image, processed %d", result.FramesProcessed)
	}
	if detections == nil {
		detections = []detect.TrackedObject{}
	}

	return &ImageResult{
		Detections:        detections,
		ProcessedImageURL: *result.OutputURL,
		ProcessingTime:    time.Since(start).Seconds(),
	}, nil
}

func imageFormat(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

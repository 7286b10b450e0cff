// Package pipeline turns frame sequences into annotated frames and tracking
// results, for whole files submitted as background jobs and for single images.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/jobs"
)

// SinkOpener opens an output sink with the given stream properties.
type SinkOpener func(path string, info frame.Info) (frame.Sink, error)

// Output describes where annotated frames of a batch run go.
type Output struct {
	Path string
	URL  string
	Open SinkOpener
}

// BatchJob processes an entire source frame by frame, in order. Tracking
// identity depends on continuity, so frames are never skipped or reordered.
type BatchJob struct {
	Log           logs.Log
	Source        frame.Source
	Tracker       detect.Tracker
	Annotator     *annotate.Annotator
	ConfThreshold float64
	// Output is nil when no annotated video is wanted.
	Output *Output
	// OnFrame, if set, receives the detections of every processed frame.
	OnFrame func(index int, objects []detect.TrackedObject)
}

// Run executes the job. A source that cannot be opened fails the job before
// any progress is reported. The source and sink are released on every path.
func (b *BatchJob) Run(ctx context.Context, report jobs.ProgressFunc) (jobs.Result, error) {
	start := time.Now()

	if err := b.Source.Open(); err != nil {
		b.closeSource()
		return jobs.Result{}, err
	}
	defer b.closeSource()

	info := b.Source.Info()

	var sink frame.Sink
	if b.Output != nil {
		var err error
		sink, err = b.Output.Open(b.Output.Path, info)
		if err != nil {
			return jobs.Result{}, fmt.Errorf("opening output: %w", err)
		}
		defer func() {
			if sink != nil {
				if err := sink.Close(); err != nil {
					b.Log.Warnf("Failed to close output %v: %v", b.Output.Path, err)
				}
			}
		}()
	}

	processed := 0
	for f := range frame.All(b.Source) {
		objects, err := b.Tracker.Track(ctx, f, b.ConfThreshold)
		if err != nil {
			return jobs.Result{}, fmt.Errorf("frame %d: tracking: %w", f.Index, err)
		}

		annotated := b.Annotator.Draw(f, objects)
		if sink != nil {
			if err := sink.Write(annotated); err != nil {
				return jobs.Result{}, fmt.Errorf("frame %d: writing output: %w", f.Index, err)
			}
		}
		if b.OnFrame != nil {
			b.OnFrame(f.Index, objects)
		}

		processed++
		if report != nil {
			report(processed, info.TotalFrames)
		}
	}
	if err := b.Source.Err(); err != nil {
		b.Log.Warnf("Source stopped after %v frames: %v", processed, err)
	}

	result := jobs.Result{FramesProcessed: processed}
	if sink != nil {
		err := sink.Close()
		sink = nil
		if err != nil {
			return jobs.Result{}, fmt.Errorf("finalizing output: %w", err)
		}
		url := b.Output.URL
		result.OutputURL = &url
	}
	result.ProcessingTime = time.Since(start)
	return result, nil
}

func (b *BatchJob) closeSource() {
	if err := b.Source.Close(); err != nil {
		b.Log.Warnf("Failed to release source: %v", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/jobs"
	"github.com/kdimtricp/vtrack/internal/pipeline"
)

func main() {
	var (
		input       = flag.String("in", "", "Video file to process")
		output      = flag.String("out", "", "Annotated output video (optional)")
		conf        = flag.Float64("conf", 0.5, "Detection confidence threshold")
		trailLength = flag.Int("trail", 30, "Trajectory length in points")
		detector    = flag.String("detector", getEnv("DETECTOR_URL", ""), "Tracker service URL")
		timeout     = flag.Duration("timeout", 10*time.Second, "Tracker request timeout")
		dump        = flag.Bool("detections", false, "Print detections of every frame as JSON lines")
	)
	flag.Parse()

	log, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	if *input == "" {
		log.Criticalf("Please provide a video file with -in")
		os.Exit(2)
	}

	ff, err := frame.NewFFmpeg(getEnv("FFMPEG_PATH", ""), getEnv("FFPROBE_PATH", ""))
	if err != nil {
		log.Criticalf("Failed to initialize ffmpeg: %v", err)
		os.Exit(1)
	}

	var tracker detect.Tracker = detect.Nop{}
	if *detector != "" {
		tracker = detect.NewHTTPClient(*detector, *timeout).Session(filepath.Base(*input))
	} else {
		log.Warnf("No tracker service configured; output will carry no detections")
	}

	b := &pipeline.BatchJob{
		Log:           log,
		Source:        ff.FileSource(*input),
		Tracker:       interruptible{tracker},
		Annotator:     annotate.New(annotate.NewTrajectoryStore(*trailLength, 10)),
		ConfThreshold: *conf,
	}
	if *output != "" {
		b.Output = &pipeline.Output{
			Path: *output,
			URL:  *output,
			Open: func(path string, info frame.Info) (frame.Sink, error) {
				return ff.NewWriter(path, info)
			},
		}
	}
	if *dump {
		enc := json.NewEncoder(os.Stdout)
		b.OnFrame = func(index int, objects []detect.TrackedObject) {
			enc.Encode(map[string]any{"frame": index, "detections": objects})
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	lastPercent := -1
	result, err := b.Run(ctx, func(processed, total int) {
		p := int(jobs.Progress(processed, total))
		if total > 0 && p/10 != lastPercent/10 {
			lastPercent = p
			fmt.Fprintf(os.Stderr, "%d%% (%d/%d frames)\n", p, processed, total)
		}
	})
	if errors.Is(err, context.Canceled) {
		log.Warnf("Interrupted; output may be incomplete")
		os.Exit(130)
	}
	if err != nil {
		log.Criticalf("Processing failed: %v", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Processed %d frames in %.2fs\n", result.FramesProcessed, result.ProcessingTime.Seconds())
	if result.OutputURL != nil {
		fmt.Fprintf(os.Stderr, "Output written to %s\n", *result.OutputURL)
	}
}

// interruptible fails tracking once ctx is cancelled, which ends the batch
// run at the next frame. The output written so far is still finalized.
type interruptible struct {
	detect.Tracker
}

func (t interruptible) Track(ctx context.Context, f *frame.Frame, confThreshold float64) ([]detect.TrackedObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.Tracker.Track(ctx, f, confThreshold)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

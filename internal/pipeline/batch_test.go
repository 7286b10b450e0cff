package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/jobs"
	"github.com/kdimtricp/vtrack/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTracker returns objects[i] for the i-th call and fails on failAt.
type scriptedTracker struct {
	mu      sync.Mutex
	objects [][]detect.TrackedObject
	calls   int
	failAt  int
}

func (s *scriptedTracker) Track(ctx context.Context, f *frame.Frame, conf float64) ([]detect.TrackedObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, errors.New("inference failed")
	}
	if s.calls <= len(s.objects) {
		return s.objects[s.calls-1], nil
	}
	return []detect.TrackedObject{}, nil
}

func (s *scriptedTracker) Session(id string) detect.Tracker { return s }

type fakeSink struct {
	written  int
	closed   bool
	closeErr error
}

func (s *fakeSink) Write(f *frame.Frame) error {
	s.written++
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return s.closeErr
}

func syntheticSource(n int) *frame.MemorySource {
	frames := make([]*frame.Frame, n)
	for i := range frames {
		frames[i] = frame.New(image.NewRGBA(image.Rect(0, 0, 32, 24)), i)
	}
	return frame.NewMemorySource(frame.Info{FPS: 10}, frames...)
}

func newBatch(t *testing.T, src frame.Source, tr detect.Tracker) *BatchJob {
	return &BatchJob{
		Log:           logs.NewTestingLog(t),
		Source:        src,
		Tracker:       tr,
		Annotator:     annotate.New(annotate.NewTrajectoryStore(5, 1)),
		ConfThreshold: 0.5,
	}
}

func TestBatchJobTenEmptyFrames(t *testing.T) {
	src := syntheticSource(10)
	b := newBatch(t, src, &scriptedTracker{})
	var perFrame [][]detect.TrackedObject
	b.OnFrame = func(index int, objects []detect.TrackedObject) {
		perFrame = append(perFrame, objects)
	}

	var progress []float64
	result, err := b.Run(context.Background(), func(processed, total int) {
		progress = append(progress, jobs.Progress(processed, total))
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.FramesProcessed)
	assert.Nil(t, result.OutputURL)
	require.Len(t, perFrame, 10)
	for _, objs := range perFrame {
		assert.Empty(t, objs)
	}
	require.Len(t, progress, 10)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 100.0, progress[len(progress)-1])
	assert.True(t, src.Closed())
}

func TestBatchJobWritesOutput(t *testing.T) {
	src := syntheticSource(3)
	sink := &fakeSink{}
	b := newBatch(t, src, &scriptedTracker{})
	var openedInfo frame.Info
	b.Output = &Output{
		Path: "out.mp4",
		URL:  "/static/results/out.mp4",
		Open: func(path string, info frame.Info) (frame.Sink, error) {
			openedInfo = info
			return sink, nil
		},
	}

	result, err := b.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sink.written)
	assert.True(t, sink.closed)
	require.NotNil(t, result.OutputURL)
	assert.Equal(t, "/static/results/out.mp4", *result.OutputURL)
	assert.Equal(t, frame.Info{Width: 32, Height: 24, FPS: 10, TotalFrames: 3}, openedInfo)
}

func TestBatchJobSinkOpenFailureReleasesSource(t *testing.T) {
	src := syntheticSource(3)
	b := newBatch(t, src, &scriptedTracker{})
	b.Output = &Output{Path: "out.mp4", Open: func(string, frame.Info) (frame.Sink, error) {
		return nil, frame.ErrOpen
	}}

	_, err := b.Run(context.Background(), nil)
	require.ErrorIs(t, err, frame.ErrOpen)
	assert.True(t, src.Closed())
}

func TestBatchJobTrackingFailureReleasesEverything(t *testing.T) {
	src := syntheticSource(5)
	sink := &fakeSink{}
	b := newBatch(t, src, &scriptedTracker{failAt: 3})
	b.Output = &Output{Path: "out.mp4", Open: func(string, frame.Info) (frame.Sink, error) { return sink, nil }}

	var reports int
	_, err := b.Run(context.Background(), func(int, int) { reports++ })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference failed")
	assert.Equal(t, 2, reports)
	assert.True(t, src.Closed())
	assert.True(t, sink.closed)
}

func TestBatchJobFinalizeFailure(t *testing.T) {
	sink := &fakeSink{closeErr: errors.New("moov atom missing")}
	b := newBatch(t, syntheticSource(2), &scriptedTracker{})
	b.Output = &Output{Path: "out.mp4", Open: func(string, frame.Info) (frame.Sink, error) { return sink, nil }}

	_, err := b.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moov atom missing")
}

type memResults struct{ dir string }

func (r memResults) ResultPath(name string) string { return filepath.Join(r.dir, name) }
func (r memResults) ResultURL(name string) string  { return "/static/results/" + name }

func newProcessor(t *testing.T, tr detect.Factory, open func(string) frame.Source) *Processor {
	s, err := settings.New(settings.Defaults())
	require.NoError(t, err)
	return &Processor{
		Log:      logs.NewTestingLog(t),
		Jobs:     jobs.NewManager(logs.NewTestingLog(t), nil),
		Trackers: tr,
		Settings: s,
		Results:  memResults{dir: t.TempDir()},
		OpenFile: open,
		OpenWriter: func(path string, info frame.Info) (frame.Sink, error) {
			return &fakeSink{}, nil
		},
	}
}

func TestSubmitVideoUnopenableSourceNeverInProgress(t *testing.T) {
	p := newProcessor(t, &scriptedTracker{}, func(path string) frame.Source {
		src := frame.NewMemorySource(frame.Info{})
		src.OpenErr = errors.New("moov atom not found")
		return src
	})

	job := p.SubmitVideo(VideoRequest{Path: "broken.mp4", Filename: "video_x.mp4", ConfThreshold: 0.5, SaveOutput: true})

	var statuses []jobs.Status
	for {
		ch := job.Changed()
		st := job.State()
		statuses = append(statuses, st.Status())
		if st.Terminal() {
			break
		}
		<-ch
	}
	p.Jobs.Wait()

	assert.NotContains(t, statuses, jobs.StatusInProgress)
	failed, ok := job.State().(jobs.Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, frame.ErrOpen)
}

func TestSubmitVideoCompletes(t *testing.T) {
	p := newProcessor(t, &scriptedTracker{}, func(path string) frame.Source {
		return syntheticSource(4)
	})

	job := p.SubmitVideo(VideoRequest{Path: "in.mp4", Filename: "video_a.mp4", ConfThreshold: 0.5, SaveOutput: true})
	p.Jobs.Wait()

	done, ok := job.State().(jobs.Completed)
	require.True(t, ok)
	assert.Equal(t, 4, done.Result.FramesProcessed)
	require.NotNil(t, done.Result.OutputURL)
	assert.Equal(t, "/static/results/result_video_a.mp4", *done.Result.OutputURL)
}

func TestProcessImage(t *testing.T) {
	tr := &scriptedTracker{objects: [][]detect.TrackedObject{{
		{BBox: detect.BBox{2, 2, 10, 10}, Confidence: 0.8, ClassName: "cat", TrackID: detect.ID(1)},
	}}}
	p := newProcessor(t, tr, nil)

	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	res, err := p.ProcessImage(context.Background(), img, "img_abc.png", 0.5)
	require.NoError(t, err)

	require.Len(t, res.Detections, 1)
	assert.Equal(t, "cat", res.Detections[0].ClassName)
	assert.Equal(t, "/static/results/result_img_abc.png", res.ProcessedImageURL)

	f, err := os.Open(p.Results.ResultPath("result_img_abc.png"))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
}

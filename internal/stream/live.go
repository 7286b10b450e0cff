// Package stream runs live camera sessions that detect, annotate and publish
// frames to websocket observers.
package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
)

// Namespace and event names used on the push transport.
const (
	Namespace       = "/stream"
	EventConnect    = "connect"
	EventFrame      = "frame"
	EventDetections = "detections"
	EventError      = "error"
)

var ErrAlreadyStarted = errors.New("stream already started")

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// Publisher delivers a message to every observer subscribed to namespace. It
// must not block.
type Publisher interface {
	Publish(namespace, event string, payload any)
}

// FrameMessage is pushed once per processed frame.
type FrameMessage struct {
	StreamID   string                 `json:"stream_id"`
	Frame      string                 `json:"frame"`
	Detections []detect.TrackedObject `json:"detections"`
	Timestamp  float64                `json:"timestamp"`
}

type Config struct {
	ID            string
	ConfThreshold float64
	FrameRate     float64
	StopTimeout   time.Duration
	JPEGQuality   int
}

// Stats are counters of a running stream.
type Stats struct {
	FramesPublished   uint64 `json:"frames_published"`
	DetectionFailures uint64 `json:"detection_failures"`
}

// LiveStream owns one capture device and one worker goroutine. It moves from
// created to running on Start, and to stopped on Stop or when the camera stops
// delivering frames. It cannot be restarted. The camera is released only by
// Stop.
type LiveStream struct {
	cfg       Config
	log       logs.Log
	source    frame.Source
	tracker   detect.Tracker
	annotator *annotate.Annotator
	publisher Publisher
	startedAt time.Time

	state  atomic.Int32
	latest atomic.Pointer[[]detect.TrackedObject]

	published atomic.Uint64
	failures  atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	lastFailureLog time.Time
}

func NewLiveStream(cfg Config, log logs.Log, source frame.Source, tracker detect.Tracker, annotator *annotate.Annotator, publisher Publisher) *LiveStream {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	s := &LiveStream{
		cfg:       cfg,
		log:       log,
		source:    source,
		tracker:   tracker,
		annotator: annotator,
		publisher: publisher,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	empty := []detect.TrackedObject{}
	s.latest.Store(&empty)
	return s
}

func (s *LiveStream) ID() string { return s.cfg.ID }
func (s *LiveStream) ConfThreshold() float64 { return s.cfg.ConfThreshold }
func (s *LiveStream) State() State { return State(s.state.Load()) }
func (s *LiveStream) StartedAt() time.Time { return s.startedAt }
func (s *LiveStream) Done() <-chan struct{} { return s.done }

func (s *LiveStream) Stats() Stats {
	return Stats{
		FramesPublished:   s.published.Load(),
		DetectionFailures: s.failures.Load(),
	}
}

// LatestDetections returns the detections of the most recently processed
// frame. The returned slice must not be modified.
func (s *LiveStream) LatestDetections() []detect.TrackedObject {
	return *s.latest.Load()
}

// Start opens the device and launches the worker. If the device cannot be
// opened nothing is started and the stream is left stopped.
func (s *LiveStream) Start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	if err := s.source.Open(); err != nil {
		s.state.Store(int32(StateStopped))
		s.cancel()
		s.releaseSource()
		close(s.done)
		return fmt.Errorf("opening camera: %w", err)
	}

	s.startedAt = time.Now()
	go s.run(s.ctx)
	return nil
}

// Stop signals the worker, waits up to the configured timeout for it to exit,
// and then releases the device whether or not the worker is done. It reports
// whether the worker exited in time.
func (s *LiveStream) Stop() bool {
	if s.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		close(s.done)
	}
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
	})

	exited := true
	select {
	case <-s.done:
	case <-time.After(s.cfg.StopTimeout):
		exited = false
		s.log.Warnf("Stream %v worker did not exit within %v", s.cfg.ID, s.cfg.StopTimeout)
	}

	s.releaseSource()
	s.state.Store(int32(StateStopped))
	return exited
}

func (s *LiveStream) releaseSource() {
	if err := s.source.Close(); err != nil {
		s.log.Warnf("Stream %v: failed to release camera: %v", s.cfg.ID, err)
	}
}

func (s *LiveStream) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *LiveStream) run(ctx context.Context) {
	defer close(s.done)
	defer s.state.Store(int32(StateStopped))
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Stream %v worker panic: %v\n%s", s.cfg.ID, r, debug.Stack())
		}
	}()

	interval := time.Duration(float64(time.Second) / s.cfg.FrameRate)
	s.log.Infof("Stream %v started (conf %.2f, %.1f fps)", s.cfg.ID, s.cfg.ConfThreshold, s.cfg.FrameRate)

	for !s.stopping() {
		f, ok := s.source.Read()
		if !ok {
			if err := s.source.Err(); err != nil && !s.stopping() {
				s.log.Warnf("Stream %v: camera read ended: %v", s.cfg.ID, err)
			}
			break
		}

		if err := s.processFrame(ctx, f); err != nil && !s.stopping() {
			s.recordFailure(err)
		}

		select {
		case <-s.stop:
		case <-time.After(interval):
		}
	}
	s.log.Infof("Stream %v worker exited after %v frames", s.cfg.ID, s.published.Load())
}

// processFrame runs one detect, annotate, publish step. A panic in the tracker
// counts as a failed frame.
func (s *LiveStream) processFrame(ctx context.Context, f *frame.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	objects, err := s.tracker.Track(ctx, f, s.cfg.ConfThreshold)
	if err != nil {
		return err
	}
	if objects == nil {
		objects = []detect.TrackedObject{}
	}
	s.latest.Store(&objects)

	annotated := s.annotator.Draw(f, objects)
	encoded, err := EncodeFrame(annotated, s.cfg.JPEGQuality)
	if err != nil {
		return err
	}

	s.publisher.Publish(Namespace, EventFrame, FrameMessage{
		StreamID:   s.cfg.ID,
		Frame:      encoded,
		Detections: objects,
		Timestamp:  Timestamp(time.Now()),
	})
	s.published.Add(1)
	return nil
}

func (s *LiveStream) recordFailure(err error) {
	n := s.failures.Add(1)
	now := time.Now()
	if now.Sub(s.lastFailureLog) > 5*time.Second {
		s.log.Warnf("Stream %v: frame failed (%v failures so far): %v", s.cfg.ID, n, err)
		s.lastFailureLog = now
	}
}

// EncodeFrame compresses f to JPEG and returns it base64 encoded.
func EncodeFrame(f *frame.Frame, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Timestamp is seconds since the Unix epoch with sub-second precision.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

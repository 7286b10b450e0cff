package main

import (
	"context"
	"image"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/kdimtricp/vtrack/internal/annotate"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	written int
	closed  bool
}

func (s *countingSink) Write(f *frame.Frame) error {
	s.written++
	return nil
}

func (s *countingSink) Close() error {
	s.closed = true
	return nil
}

func TestInterruptStopsBatchRun(t *testing.T) {
	frames := make([]*frame.Frame, 5)
	for i := range frames {
		frames[i] = frame.New(image.NewRGBA(image.Rect(0, 0, 8, 8)), i)
	}
	src := frame.NewMemorySource(frame.Info{FPS: 25}, frames...)
	sink := &countingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &pipeline.BatchJob{
		Log:       logs.NewTestingLog(t),
		Source:    src,
		Tracker:   interruptible{detect.Nop{}},
		Annotator: annotate.New(annotate.NewTrajectoryStore(5, 1)),
		Output: &pipeline.Output{
			Path: "out.mp4",
			Open: func(path string, info frame.Info) (frame.Sink, error) { return sink, nil },
		},
		OnFrame: func(index int, objects []detect.TrackedObject) {
			if index == 1 {
				cancel()
			}
		},
	}

	_, err := b.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sink.written)
	assert.True(t, sink.closed, "partial output is finalized")
	assert.True(t, src.Closed())
}

func TestInterruptiblePassesThrough(t *testing.T) {
	f := frame.New(image.NewRGBA(image.Rect(0, 0, 4, 4)), 0)
	objects, err := interruptible{detect.Nop{}}.Track(context.Background(), f, 0.5)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

package pipeline

import (
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/kdimtricp/vtrack/internal/frame"
	"golang.org/x/image/bmp"
)

// imageSink keeps the last frame written and saves it when closed, encoded
// according to the file extension.
type imageSink struct {
	path string
	last *frame.Frame
}

func newImageSink(path string) *imageSink {
	return &imageSink{path: path}
}

func (s *imageSink) Write(f *frame.Frame) error {
	s.last = f
	return nil
}

func (s *imageSink) Close() error {
	if s.last == nil {
		return errors.New("no image written")
	}

	out, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	defer out.Close()

	switch imageFormat(s.path) {
	case "png":
		err = png.Encode(out, s.last.Image)
	case "bmp":
		err = bmp.Encode(out, s.last.Image)
	default:
		err = jpeg.Encode(out, s.last.Image, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		os.Remove(s.path)
		return fmt.Errorf("failed to encode result: %w", err)
	}
	s.last = nil
	return out.Close()
}

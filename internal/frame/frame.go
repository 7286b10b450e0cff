// Package frame provides decoded video frames and the sources and sinks that
// produce and consume them.
package frame

import (
	"errors"
	"image"
	"image/draw"
)

var (
	// ErrOpen is returned when a device or file cannot be acquired.
	ErrOpen = errors.New("frame: cannot open")
	// ErrSize is returned when a frame does not match the dimensions of a sink.
	ErrSize = errors.New("frame: size mismatch")
)

// Frame is a single decoded RGBA picture. A Frame must not be modified while
// another component is reading it; annotation works on a Clone.
type Frame struct {
	Image *image.RGBA
	Index int
}

// New wraps img as a frame. Images that are not RGBA are converted.
func New(img image.Image, index int) *Frame {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Frame{Image: rgba, Index: index}
}

func (f *Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Clone returns a deep copy of the frame with its own pixel buffer.
func (f *Frame) Clone() *Frame {
	b := f.Image.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), f.Image, b.Min, draw.Src)
	return &Frame{Image: dst, Index: f.Index}
}

// Info describes the stream a Source produces. TotalFrames is zero when the
// container does not report a frame count.
type Info struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
}

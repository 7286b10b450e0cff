// Package annotate draws detection results and motion trails onto frames.
package annotate

import (
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/settings"
	"golang.org/x/image/font/basicfont"
)

// Objects with a track id are drawn in TrackedColor; detections the tracker has
// not yet picked up are drawn in DetectedColor.
var (
	TrackedColor  = color.RGBA{255, 0, 0, 255}
	DetectedColor = color.RGBA{0, 255, 0, 255}
	TrailColor    = TrackedColor
)

// Annotator renders boxes, labels and trails. An Annotator carries the trail
// state of one stream or job and must not be shared between them.
type Annotator struct {
	trails   *TrajectoryStore
	settings *settings.Settings
}

func New(trails *TrajectoryStore) *Annotator {
	return &Annotator{trails: trails}
}

// NewFromSettings creates an Annotator with a fresh trajectory store that
// follows the trail settings in s on every frame.
func NewFromSettings(s *settings.Settings) *Annotator {
	v := s.Get()
	return &Annotator{
		trails:   NewTrajectoryStore(v.TrailLength, v.FadeSteps),
		settings: s,
	}
}

func (a *Annotator) Trails() *TrajectoryStore { return a.trails }

// Label formats the caption drawn above an object's box.
func Label(o detect.TrackedObject) string {
	label := fmt.Sprintf("%s %.2f", o.ClassName, o.Confidence)
	if o.TrackID != nil {
		label += fmt.Sprintf(" ID:%d", *o.TrackID)
	}
	return label
}

// Draw returns an annotated copy of f; f itself is not modified. The centre of
// every tracked object is pushed into the trajectory store, and trails are drawn
// after all boxes so they sit on top.
func (a *Annotator) Draw(f *frame.Frame, objects []detect.TrackedObject) *frame.Frame {
	if a.settings != nil {
		v := a.settings.Get()
		a.trails.SetMaxPoints(v.TrailLength)
		a.trails.SetFadeSteps(v.FadeSteps)
	}

	out := f.Clone()
	dc := gg.NewContextForRGBA(out.Image)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(2)

	active := make([]int, 0, len(objects))
	for _, o := range objects {
		c := DetectedColor
		if o.Tracked() {
			c = TrackedColor
		}
		dc.SetColor(c)

		x1, y1 := float64(o.BBox.X1()), float64(o.BBox.Y1())
		w, h := float64(o.BBox.X2()-o.BBox.X1()), float64(o.BBox.Y2()-o.BBox.Y1())
		dc.DrawRectangle(x1, y1, w, h)
		dc.Stroke()
		dc.DrawString(Label(o), x1, y1-10)

		if o.Tracked() {
			a.trails.Update(*o.TrackID, o.BBox.Center())
			active = append(active, *o.TrackID)
		}
	}

	a.trails.Render(out.Image, active)
	return out
}

package annotate

import (
	"image"
	"image/color"
	"testing"

	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(w, h int) *frame.Frame {
	return frame.New(image.NewRGBA(image.Rect(0, 0, w, h)), 0)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "person 0.87", Label(detect.TrackedObject{ClassName: "person", Confidence: 0.8712}))
	assert.Equal(t, "car 0.50 ID:12", Label(detect.TrackedObject{ClassName: "car", Confidence: 0.5, TrackID: detect.ID(12)}))
}

func TestDrawDoesNotMutateInput(t *testing.T) {
	in := blank(100, 100)
	a := New(NewTrajectoryStore(5, 1))

	out := a.Draw(in, []detect.TrackedObject{
		{BBox: detect.BBox{10, 20, 50, 60}, Confidence: 0.9, ClassName: "person", TrackID: detect.ID(1)},
	})

	assert.Equal(t, color.RGBA{}, in.Image.RGBAAt(10, 40))
	assert.NotSame(t, in.Image, out.Image)
}

func TestDrawColorPolicy(t *testing.T) {
	a := New(NewTrajectoryStore(5, 1))
	out := a.Draw(blank(200, 100), []detect.TrackedObject{
		{BBox: detect.BBox{10, 20, 50, 60}, Confidence: 0.9, ClassName: "person", TrackID: detect.ID(1)},
		{BBox: detect.BBox{110, 20, 150, 60}, Confidence: 0.6, ClassName: "dog"},
	})

	assert.Equal(t, TrackedColor, out.Image.RGBAAt(10, 40), "tracked box edge")
	assert.Equal(t, DetectedColor, out.Image.RGBAAt(110, 40), "untracked box edge")
	assert.NotEqual(t, TrackedColor, DetectedColor)
}

func TestDrawFeedsTrajectories(t *testing.T) {
	store := NewTrajectoryStore(5, 1)
	a := New(store)

	a.Draw(blank(100, 100), []detect.TrackedObject{
		{BBox: detect.BBox{0, 0, 10, 10}, TrackID: detect.ID(4)},
		{BBox: detect.BBox{20, 20, 30, 30}},
	})
	a.Draw(blank(100, 100), []detect.TrackedObject{
		{BBox: detect.BBox{10, 10, 20, 20}, TrackID: detect.ID(4)},
	})
	assert.Equal(t, []image.Point{{5, 5}, {15, 15}}, store.Points(4))
	assert.Equal(t, 1, store.Len())

	// object lost for one frame
	a.Draw(blank(100, 100), nil)
	assert.Equal(t, 0, store.Len())
}

func TestDrawFollowsSettings(t *testing.T) {
	s, err := settings.New(settings.Values{ConfThreshold: 0.5, TrailLength: 4, FadeSteps: 2})
	require.NoError(t, err)
	a := NewFromSettings(s)
	assert.Equal(t, 4, a.Trails().MaxPoints())

	require.NoError(t, s.SetTrailLength(2))
	for i := 0; i < 5; i++ {
		a.Draw(blank(50, 50), []detect.TrackedObject{{BBox: detect.BBox{i, i, i + 2, i + 2}, TrackID: detect.ID(1)}})
	}
	assert.Len(t, a.Trails().Points(1), 2)
	assert.Equal(t, 2, a.Trails().FadeSteps())
}

func TestDrawTrailsOverBoxes(t *testing.T) {
	a := New(NewTrajectoryStore(5, 1))
	a.Draw(blank(200, 100), []detect.TrackedObject{
		{BBox: detect.BBox{10, 40, 30, 60}, TrackID: detect.ID(1)},
	})
	// The trail from (20,50) to (180,50) crosses the left edge of the dog's box.
	out := a.Draw(blank(200, 100), []detect.TrackedObject{
		{BBox: detect.BBox{170, 40, 190, 60}, TrackID: detect.ID(1)},
		{BBox: detect.BBox{90, 20, 110, 80}, Confidence: 0.6, ClassName: "dog"},
	})

	assert.Equal(t, DetectedColor, out.Image.RGBAAt(90, 30), "box edge away from the trail")
	assert.Equal(t, TrailColor, out.Image.RGBAAt(90, 50), "trail drawn on top of the box edge")
}

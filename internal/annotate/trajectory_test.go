package annotate

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTrajectoryFIFOEviction(t *testing.T) {
	s := NewTrajectoryStore(3, 10)
	for i := 0; i < 4; i++ {
		s.Update(1, image.Pt(i, i))
	}

	want := []image.Point{{1, 1}, {2, 2}, {3, 3}}
	if diff := cmp.Diff(want, s.Points(1)); diff != "" {
		t.Errorf("trail mismatch (-want +got):\n%s", diff)
	}
}

func TestTrajectoryNeverExceedsCapacity(t *testing.T) {
	for _, capacity := range []int{1, 2, 5, 17} {
		s := NewTrajectoryStore(capacity, 1)
		var all []image.Point
		for i := 0; i < 50; i++ {
			p := image.Pt(i, 2*i)
			all = append(all, p)
			s.Update(9, p)

			got := s.Points(9)
			assert.LessOrEqual(t, len(got), capacity)
			start := max(0, len(all)-capacity)
			if diff := cmp.Diff(all[start:], got); diff != "" {
				t.Fatalf("capacity %d step %d (-want +got):\n%s", capacity, i, diff)
			}
		}
	}
}

func TestTrajectoryRenderPrunesInactive(t *testing.T) {
	s := NewTrajectoryStore(5, 1)
	s.Update(1, image.Pt(0, 0))
	s.Update(1, image.Pt(1, 1))
	s.Update(2, image.Pt(5, 5))

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	s.Render(img, []int{2})

	assert.Empty(t, s.Points(1))
	assert.Equal(t, 1, s.Len())

	// id 1 resurfacing does not bring back its old trail
	s.Render(img, []int{1, 2})
	assert.Empty(t, s.Points(1))
	s.Update(1, image.Pt(7, 7))
	assert.Equal(t, []image.Point{{7, 7}}, s.Points(1))
}

func TestTrajectoryShrinkCapacity(t *testing.T) {
	s := NewTrajectoryStore(5, 1)
	for i := 0; i < 5; i++ {
		s.Update(3, image.Pt(i, 0))
	}
	s.SetMaxPoints(2)
	assert.Len(t, s.Points(3), 5, "existing trail untouched until next update")

	s.Update(3, image.Pt(9, 0))
	assert.Equal(t, []image.Point{{4, 0}, {9, 0}}, s.Points(3))

	s.SetMaxPoints(0)
	assert.Equal(t, 1, s.MaxPoints())
	s.SetFadeSteps(7)
	assert.Equal(t, 7, s.FadeSteps())
}

func TestTrajectoryOpacityIncreasesTowardNewest(t *testing.T) {
	s := NewTrajectoryStore(10, 1)
	s.Update(1, image.Pt(0, 10))
	s.Update(1, image.Pt(20, 10))
	s.Update(1, image.Pt(40, 10))

	img := image.NewRGBA(image.Rect(0, 0, 50, 20))
	s.Render(img, []int{1})

	older := img.RGBAAt(10, 10)
	newer := img.RGBAAt(30, 10)
	assert.InDelta(t, 128, int(older.R), 4, "oldest segment is half opaque")
	assert.Equal(t, uint8(255), newer.R, "newest segment is opaque")
	assert.Less(t, older.R, newer.R)
}

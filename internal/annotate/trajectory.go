package annotate

import (
	"image"
	"image/color"
	"slices"
	"sync"

	"github.com/fogleman/gg"
)

// TrajectoryStore keeps, per track identifier, the most recent centre points of
// an object. Each trail is a FIFO of at most MaxPoints entries.
type TrajectoryStore struct {
	mu        sync.Mutex
	maxPoints int
	fadeSteps int
	trails    map[int][]image.Point
	color     color.RGBA
	lineWidth float64
}

func NewTrajectoryStore(maxPoints, fadeSteps int) *TrajectoryStore {
	return &TrajectoryStore{
		maxPoints: max(maxPoints, 1),
		fadeSteps: max(fadeSteps, 1),
		trails:    make(map[int][]image.Point),
		color:     TrailColor,
		lineWidth: 2,
	}
}

func (s *TrajectoryStore) MaxPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPoints
}

// SetMaxPoints changes the trail capacity. Existing trails are trimmed on their
// next Update.
func (s *TrajectoryStore) SetMaxPoints(n int) {
	s.mu.Lock()
	s.maxPoints = max(n, 1)
	s.mu.Unlock()
}

// FadeSteps is carried for decay-curve tuning; the opacity of a segment only
// depends on its position in the trail.
func (s *TrajectoryStore) FadeSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fadeSteps
}

func (s *TrajectoryStore) SetFadeSteps(n int) {
	s.mu.Lock()
	s.fadeSteps = max(n, 1)
	s.mu.Unlock()
}

// Update appends p to the trail of trackID, creating it if needed and evicting
// the oldest points beyond capacity.
func (s *TrajectoryStore) Update(trackID int, p image.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trail := append(s.trails[trackID], p)
	if over := len(trail) - s.maxPoints; over > 0 {
		trail = slices.Delete(trail, 0, over)
	}
	s.trails[trackID] = trail
}

// Points returns a copy of the trail for trackID, oldest first.
func (s *TrajectoryStore) Points(trackID int) []image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.trails[trackID])
}

// Len returns the number of stored trails.
func (s *TrajectoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trails)
}

// Render deletes every trail whose id is not in active, then draws the
// remaining trails onto img. A track missing from a single frame loses its
// whole history.
//
// Segment i of n (counting from the oldest, starting at 1) is blended with
// opacity i/n, so the newest segment is opaque.
func (s *TrajectoryStore) Render(img *image.RGBA, active []int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[int]bool, len(active))
	for _, id := range active {
		keep[id] = true
	}
	for id := range s.trails {
		if !keep[id] {
			delete(s.trails, id)
		}
	}
	if len(s.trails) == 0 {
		return
	}

	ids := make([]int, 0, len(s.trails))
	for id := range s.trails {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	dc := gg.NewContextForRGBA(img)
	dc.SetLineWidth(s.lineWidth)
	r, g, b := float64(s.color.R)/255, float64(s.color.G)/255, float64(s.color.B)/255
	for _, id := range ids {
		trail := s.trails[id]
		segments := len(trail) - 1
		for i := 1; i <= segments; i++ {
			alpha := float64(i) / float64(segments)
			dc.SetRGBA(r, g, b, alpha)
			p0, p1 := trail[i-1], trail[i]
			dc.DrawLine(float64(p0.X), float64(p0.Y), float64(p1.X), float64(p1.Y))
			dc.Stroke()
		}
	}
}

// Package detect holds the tracked-object types and the boundary to the
// external detection and tracking capability.
package detect

import (
	"context"
	"image"

	"github.com/kdimtricp/vtrack/internal/frame"
)

// BBox is a box in pixel coordinates with X1 < X2 and Y1 < Y2.
// It marshals as [x1, y1, x2, y2].
type BBox [4]int

func (b BBox) X1() int { return b[0] }
func (b BBox) Y1() int { return b[1] }
func (b BBox) X2() int { return b[2] }
func (b BBox) Y2() int { return b[3] }

// Center returns the integer midpoint of the box.
func (b BBox) Center() image.Point {
	return image.Pt((b[0]+b[2])/2, (b[1]+b[3])/2)
}

// TrackedObject is one detection. TrackID is nil when the tracker could not
// assign a stable identity.
type TrackedObject struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	TrackID    *int    `json:"track_id"`
}

// Tracked reports whether the object carries a track identifier.
func (o TrackedObject) Tracked() bool { return o.TrackID != nil }

// ID returns a pointer suitable for TrackedObject.TrackID.
func ID(id int) *int { return &id }

// Tracker detects and tracks objects in consecutive frames. Track identifiers
// stay stable across calls on the same Tracker while an object remains visible,
// so frames must be fed in temporal order.
type Tracker interface {
	Track(ctx context.Context, f *frame.Frame, confThreshold float64) ([]TrackedObject, error)
}

// Factory returns a Tracker whose identity state belongs to one session, such
// as a single batch job or live stream.
type Factory interface {
	Session(id string) Tracker
}

// Nop finds nothing. It stands in when no detector is configured.
type Nop struct{}

func (Nop) Track(ctx context.Context, f *frame.Frame, confThreshold float64) ([]TrackedObject, error) {
	return []TrackedObject{}, nil
}

func (n Nop) Session(id string) Tracker { return n }

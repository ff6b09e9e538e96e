// Package overlay manages caller-owned drawing strokes that follow
// trackers.  A stroke is only ever translated, never reshaped.
package overlay

import (
	clipper "github.com/ctessum/go.clipper"
	"github.com/google/uuid"
)

// clipperScale converts float pixel coordinates to clipper's integer
// space with sub-pixel resolution
const clipperScale = 100

// Point is one stroke vertex in pixel coordinates
type Point struct {
	X, Y float64
}

// Stroke is an ordered point sequence drawn by the caller.  When
// TrackerID is set the stroke is tracker-local and follows that
// tracker's displacement; otherwise it is independent and static
type Stroke struct {
	ID        string
	TrackerID string
	Points    []Point
}

// NewStroke creates an independent stroke from the given points
func NewStroke(points []Point) *Stroke {
	return &Stroke{
		ID:     uuid.NewString(),
		Points: points,
	}
}

// AttachTo binds the stroke to a tracker
func (s *Stroke) AttachTo(trackerID string) {
	s.TrackerID = trackerID
}

// Detach makes the stroke independent again
func (s *Stroke) Detach() {
	s.TrackerID = ""
}

// Translate moves every point of the stroke by (dx, dy)
func (s *Stroke) Translate(dx, dy float64) {
	for i := range s.Points {
		s.Points[i].X += dx
		s.Points[i].Y += dy
	}
}

// path converts the stroke to a closed clipper path
func (s *Stroke) path() clipper.Path {
	var path clipper.Path

	for _, pt := range s.Points {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(pt.X * clipperScale),
			Y: clipper.CInt(pt.Y * clipperScale),
		})
	}

	return path
}

// Contains reports whether the point falls inside the stroke treated as
// a closed polygon.  Open strokes are closed implicitly between their
// last and first points.  A stroke with fewer than three points
// contains nothing
func (s *Stroke) Contains(x, y float64) bool {
	if len(s.Points) < 3 {
		return false
	}

	// intersect a small probe square around the point with the stroke
	// polygon; a non-empty result means the point is inside
	const half = clipperScale / 2

	cx := clipper.CInt(x * clipperScale)
	cy := clipper.CInt(y * clipperScale)

	probe := clipper.Path{
		&clipper.IntPoint{X: cx - half, Y: cy - half},
		&clipper.IntPoint{X: cx + half, Y: cy - half},
		&clipper.IntPoint{X: cx + half, Y: cy + half},
		&clipper.IntPoint{X: cx - half, Y: cy + half},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(s.path(), clipper.PtSubject, true)
	c.AddPath(probe, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection,
		clipper.PftEvenOdd, clipper.PftEvenOdd)

	return ok && len(solution) > 0
}

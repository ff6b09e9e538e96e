package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	pointtrack "github.com/pointtrack/go-pointtrack"
)

// Strokes draws the overlay strokes on the source image.  Strokes
// attached to a tracker take that tracker's palette color, detached
// strokes use the given color
func Strokes(img *gocv.Mat, strokes []pointtrack.StrokeResult,
	detachedClr color.RGBA, thickness int) {

	for _, s := range strokes {

		if len(s.Points) < 2 {
			continue
		}

		useClr := detachedClr
		if s.TrackerID != "" {
			useClr = TrackerColor(s.TrackerID)
		}

		prev := image.Pt(int(s.Points[0].X), int(s.Points[0].Y))

		for _, p := range s.Points[1:] {
			next := image.Pt(int(p.X), int(p.Y))
			gocv.Line(img, prev, next, useClr, thickness)
			prev = next
		}

		// close the outline
		first := image.Pt(int(s.Points[0].X), int(s.Points[0].Y))
		gocv.Line(img, prev, first, useClr, thickness)
	}
}

package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	pointtrack "github.com/pointtrack/go-pointtrack"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the tracker marker.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the trail point circles should
	// be the same color as that of the tracker marker.  If set to false
	// then use the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  2,
	}
}

// Trails draws the tracker trail lines on the source image
func Trails(img *gocv.Mat, trackers []pointtrack.TrackerResult,
	style TrailStyle) {

	for _, t := range trackers {

		if len(t.Trail) < 2 {
			continue
		}

		objClr := TrackerColor(t.ID)

		lineClr := objClr
		if !style.LineSame {
			lineClr = style.LineColor
		}

		circleClr := objClr
		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		prev := image.Pt(int(t.Trail[0].X), int(t.Trail[0].Y))

		for _, p := range t.Trail[1:] {
			next := image.Pt(int(p.X), int(p.Y))
			gocv.Line(img, prev, next, lineClr, style.LineThickness)
			prev = next
		}

		gocv.Circle(img, prev, style.CircleRadius, circleClr, -1)
	}
}

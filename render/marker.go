package render

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	pointtrack "github.com/pointtrack/go-pointtrack"
	"github.com/pointtrack/go-pointtrack/track"
)

// MarkerStyle defines the parameters used for rendering tracker markers
type MarkerStyle struct {
	// CircleRadius is the radius of the circle drawn around the tracker
	// position
	CircleRadius int
	// CrossSize is the half length of the crosshair arms
	CrossSize int
	// Thickness of the marker lines
	Thickness int
	// ShowState appends the lifecycle state to the label text
	ShowState bool
}

// DefaultMarkerStyle returns default marker style settings
func DefaultMarkerStyle() MarkerStyle {
	return MarkerStyle{
		CircleRadius: 12,
		CrossSize:    4,
		Thickness:    2,
		ShowState:    true,
	}
}

// boxLabel holds the calculated position of a text label so all labels can
// be drawn last as the top most layer on the image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// stateColor returns the marker color for a tracker, the palette color
// while tracked and muted colors while occluded or lost
func stateColor(t pointtrack.TrackerResult) color.RGBA {
	switch t.State {
	case track.StateTracking:
		return TrackerColor(t.ID)
	case track.StateOccluded:
		return Yellow
	default:
		return Grey
	}
}

// Trackers renders the position markers and labels for all trackers on
// the source image
func Trackers(img *gocv.Mat, trackers []pointtrack.TrackerResult,
	font Font, style MarkerStyle) {

	boxLabels := make([]boxLabel, 0)

	for _, t := range trackers {

		useClr := stateColor(t)

		cx := int(t.X)
		cy := int(t.Y)
		pt := image.Pt(cx, cy)

		gocv.Circle(img, pt, style.CircleRadius, useClr, style.Thickness)

		// crosshair
		gocv.Line(img, image.Pt(cx-style.CrossSize, cy),
			image.Pt(cx+style.CrossSize, cy), useClr, style.Thickness)
		gocv.Line(img, image.Pt(cx, cy-style.CrossSize),
			image.Pt(cx, cy+style.CrossSize), useClr, style.Thickness)

		// create text for label
		text := t.Label

		if style.ShowState {
			text = fmt.Sprintf("%s [%s]", t.Label, t.State)
		}

		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		top := cy - style.CircleRadius - font.BottomPad

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(cx-textSize.X/2, top)

		// create box for placing text on
		bRect := image.Rect(cx-textSize.X/2-font.LeftPad,
			top-textSize.Y-font.TopPad,
			cx+textSize.X/2+font.RightPad, top+font.BottomPad/2)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		})
	}

	// draw all precalculated labels so they are the top most layer on the
	// image and don't get overlapped by markers
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

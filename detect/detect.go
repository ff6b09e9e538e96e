// Package detect defines the external detector feed consumed by the
// tracking engine.  Detections are optional input; their absence never
// affects tracking beyond losing the shortcut they provide.
package detect

// Detection is one detector result for a frame.  Box coordinates are
// normalized to [0,1] so the producer does not need to know the frame
// resolution the tracking pipeline runs at
type Detection struct {
	// X, Y is the top-left corner and W, H the size, all normalized
	X, Y, W, H float64
	// Label is the detector's class name
	Label string
	// Conf is the detector confidence in [0,1]
	Conf float64
}

// Center returns the detection center in pixel coordinates for a frame
// of the given size
func (d Detection) Center(frameW, frameH int) (float64, float64) {
	return (d.X + d.W/2) * float64(frameW), (d.Y + d.H/2) * float64(frameH)
}

// Package estimate contains the per-frame position estimators: global
// camera motion, optical flow block matching, normalized-correlation
// template matching and the weighted candidate fusion that combines them.
package estimate

// Source identifies which estimator produced a candidate.  The set is
// closed; fusion weights are defined for every member.
type Source int

const (
	// SourceFlow is the forward-backward optical flow matcher
	SourceFlow Source = iota
	// SourceTemplate is the normalized correlation template matcher
	SourceTemplate
	// SourceAnchor is the external anchor tracking module
	SourceAnchor
	// SourceOrb is the keypoint based re-identification engine
	SourceOrb
	// SourceDetector is the external object detector feed
	SourceDetector
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceFlow:
		return "flow"
	case SourceTemplate:
		return "template"
	case SourceAnchor:
		return "anchor"
	case SourceOrb:
		return "orb"
	case SourceDetector:
		return "detector"
	}
	return "unknown"
}

// Candidate is a single per-frame position estimate from one source.
type Candidate struct {
	// X and Y are the estimated position in frame pixels
	X float32
	Y float32
	// Conf is the estimator confidence in [0,1]
	Conf float32
	// Source identifies the producing estimator
	Source Source
}

// GlobalMotion is the camera-induced frame translation estimate.
type GlobalMotion struct {
	// DX and DY are the per-frame displacement in pixels
	DX float32
	DY float32
	// Conf is the estimate confidence in [0,1], zero when no grid cells
	// matched
	Conf float32
}

// Magnitude returns the displacement length in pixels.
func (g GlobalMotion) Magnitude() float32 {
	return hypot32(g.DX, g.DY)
}

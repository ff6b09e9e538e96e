package track

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/pointtrack/go-pointtrack/frame"
	"github.com/pointtrack/go-pointtrack/reid"
)

// State represents a tracker lifecycle state
type State int

const (
	// StateTracking is the normal locked-on state
	StateTracking State = iota
	// StateOccluded means the target is temporarily hidden but the
	// tracker still coasts on its motion model
	StateOccluded
	// StateLost means the target could not be followed any further
	StateLost
	// StateSearching is the sub-phase of Lost during which a
	// re-identification search runs on the current frame
	StateSearching
)

// String returns a human readable state name
func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateOccluded:
		return "occluded"
	case StateLost:
		return "lost"
	case StateSearching:
		return "searching"
	default:
		return "unknown"
	}
}

// MotionState holds the filtered motion estimate for a tracker
type MotionState struct {
	// X, Y is the filtered center position
	X, Y float64
	// VX, VY is the filtered velocity in pixels per frame
	VX, VY float64
	// DisplayX, DisplayY is the smoothed position handed to rendering
	DisplayX, DisplayY float64
	// mean and cov are the Kalman filter state
	mean StateMean
	cov  *StateCov
}

// Speed returns the filtered speed in pixels per frame
func (m *MotionState) Speed() float64 {
	return hypot(m.VX, m.VY)
}

// AppearanceState holds what the tracked object looks like.  After the
// initial capture its fields only ever change by bounded blending
type AppearanceState struct {
	// Template is the grayscale correlation patch
	Template *frame.Patch
	// Histogram is the HSV color signature
	Histogram reid.Histogram
	// HasHistogram reports whether the initial capture succeeded
	HasHistogram bool
	// Embeddings is the compact embedding history
	Embeddings *reid.EmbeddingHistory
	// TemplateUpdatedAt is when the template was last blended
	TemplateUpdatedAt time.Time
}

// ReidState holds the stored features used to re-identify the object
// after it is lost
type ReidState struct {
	// Keypoints and Descriptors captured at creation
	Keypoints   []reid.Keypoint
	Descriptors []reid.Descriptor
	// AnchorX, AnchorY is the object center at feature capture time,
	// projected through the recovered homography during search
	AnchorX, AnchorY float64
	// Staged is the unconfirmed relocation candidate awaiting a second
	// agreeing match
	Staged *Staged
}

// Staged is a relocation candidate held back until the next evaluation
// agrees with it
type Staged struct {
	X, Y float64
}

// ExternalMeta holds descriptive metadata owned by external services.
// It never influences the per-frame estimators
type ExternalMeta struct {
	Description string
	Features    []string
}

// Tracker is one tracked object
type Tracker struct {
	// ID is a stable unique identifier
	ID string
	// Label is the display name; AutoLabel marks it as generated and
	// replaceable by a claimed detection's class label
	Label     string
	AutoLabel bool

	// State is the lifecycle state, Confidence the latest fused
	// confidence in [0,1]
	State      State
	Confidence float64

	// Frozen is set once the lost timeout expires; a frozen tracker is
	// skipped by the pipeline until the caller deletes it
	Frozen bool

	// frame counters driving the state machine
	FramesTracked  int
	FramesOccluded int
	FramesLost     int

	Motion     MotionState
	Appearance AppearanceState
	Reid       ReidState
	Meta       ExternalMeta

	// Anchors is an opaque anchor set owned by an external anchor
	// tracking module; the core never inspects it
	Anchors any
}

// New creates a tracker at the given seed position in state Tracking
func New(kf *KalmanFilter, label string, autoLabel bool, x, y float64) *Tracker {

	t := &Tracker{
		ID:         uuid.NewString(),
		Label:      label,
		AutoLabel:  autoLabel,
		State:      StateTracking,
		Confidence: 1,
	}

	t.Motion.mean = make(StateMean, 4)
	t.Motion.cov = &StateCov{mat.NewDense(4, 4, nil)}

	kf.Initiate(t.Motion.mean, t.Motion.cov,
		Measurement{float32(x), float32(y)})

	t.Motion.X, t.Motion.Y = x, y
	t.Motion.DisplayX, t.Motion.DisplayY = x, y

	return t
}

// syncMotion copies the filter state into the exported motion fields
func (t *Tracker) syncMotion() {
	t.Motion.X = float64(t.Motion.mean[0])
	t.Motion.Y = float64(t.Motion.mean[1])
	t.Motion.VX = float64(t.Motion.mean[2])
	t.Motion.VY = float64(t.Motion.mean[3])
}

package pointtrack

import (
	"github.com/pointtrack/go-pointtrack/estimate"
	"github.com/pointtrack/go-pointtrack/overlay"
	"github.com/pointtrack/go-pointtrack/track"
)

// TrackerResult is one tracker's per-frame output
type TrackerResult struct {
	ID         string
	Label      string
	X, Y       float64
	State      track.State
	Confidence float64
	Frozen     bool
	// Trail is the recent displayed position history, oldest first
	Trail []track.Point
}

// StrokeResult is one overlay stroke's repositioned point list
type StrokeResult struct {
	ID        string
	TrackerID string
	Points    []overlay.Point
}

// FrameResult is the output of one full tracking pass
type FrameResult struct {
	// Seq is the frame sequence number the result belongs to
	Seq uint64
	// Global is the camera motion estimate for this frame pair
	Global estimate.GlobalMotion
	// Trackers holds per-tracker output in creation order
	Trackers []TrackerResult
	// Strokes holds the repositioned overlay shapes
	Strokes []StrokeResult
}

// Stats is an engine counters snapshot
type Stats struct {
	// FramesProcessed counts completed tracking passes
	FramesProcessed uint64
	// ActiveTrackers and FrozenTrackers partition the current tracker set
	ActiveTrackers int
	FrozenTrackers int
	// TrackersByState counts trackers per lifecycle state
	TrackersByState map[track.State]int
	// Relocations counts confirmed re-identifications
	Relocations uint64
	// DetectionsClaimed counts detections handed to trackers
	DetectionsClaimed uint64
}

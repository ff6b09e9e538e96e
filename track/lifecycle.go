package track

import "math"

// Config holds the lifecycle thresholds
type Config struct {
	// OcclusionConfidence is the fused confidence below which a tracker
	// is considered occluded
	OcclusionConfidence float64
	// OcclusionTimeout is the number of consecutive occluded frames
	// after which the tracker goes Lost
	OcclusionTimeout int
	// LostTimeout is the number of lost frames after which the tracker
	// freezes and stops being processed
	LostTimeout int
	// ConfirmRadius is the maximum distance between two consecutive
	// relocation candidates for the second one to confirm the first
	ConfirmRadius float64
	// SmoothMin, SmoothMax bound the display smoothing factor and
	// SmoothSpeedNorm is the speed at which one full unit of smoothing
	// is added, so slow targets are smoothed hard and fast targets
	// follow the filter closely
	SmoothMin       float64
	SmoothMax       float64
	SmoothSpeedNorm float64
}

// Predict advances the motion filter one frame and returns the predicted
// center, used as the search origin for the estimators
func (t *Tracker) Predict(kf *KalmanFilter) (float64, float64) {
	kf.Predict(t.Motion.mean, t.Motion.cov)
	t.syncMotion()
	return t.Motion.X, t.Motion.Y
}

// Observe applies one frame's fused outcome to a tracker in the
// Tracking or Occluded state.  ok is false when fusion produced no
// candidate at all
func (t *Tracker) Observe(kf *KalmanFilter, x, y, conf float64, ok bool,
	cfg Config) {

	if t.Frozen || t.State == StateLost || t.State == StateSearching {
		return
	}

	if !ok {
		conf = 0
	}

	if conf < cfg.OcclusionConfidence {
		if t.State == StateTracking {
			t.State = StateOccluded
			t.FramesOccluded = 0
		}

		t.FramesOccluded++
		t.Confidence = conf

		if t.FramesOccluded > cfg.OcclusionTimeout {
			t.State = StateLost
			t.FramesLost = 0
		}

		return
	}

	// the filter tolerates a failed update by keeping the prediction
	if err := kf.Update(t.Motion.mean, t.Motion.cov,
		Measurement{float32(x), float32(y)}); err == nil {
		t.syncMotion()
	}

	if t.State == StateOccluded {
		t.State = StateTracking
	}

	t.FramesTracked++
	t.FramesOccluded = 0
	t.FramesLost = 0
	t.Confidence = conf

	t.smoothDisplay(cfg)
}

// smoothDisplay blends the filtered position into the displayed one with
// a speed-adaptive factor
func (t *Tracker) smoothDisplay(cfg Config) {
	alpha := clamp(cfg.SmoothMin+t.Motion.Speed()/cfg.SmoothSpeedNorm,
		cfg.SmoothMin, cfg.SmoothMax)

	t.Motion.DisplayX += alpha * (t.Motion.X - t.Motion.DisplayX)
	t.Motion.DisplayY += alpha * (t.Motion.Y - t.Motion.DisplayY)
}

// TickLost advances the lost-frame counter for a tracker in the Lost or
// Searching state.  searching flags whether a re-identification search
// runs on this frame.  Freezes the tracker once the lost timeout expires
func (t *Tracker) TickLost(searching bool, cfg Config) {
	if t.Frozen {
		return
	}

	t.FramesLost++

	if t.FramesLost > cfg.LostTimeout {
		t.Frozen = true
		t.State = StateLost
		t.Reid.Staged = nil
		return
	}

	if searching {
		t.State = StateSearching
	} else {
		t.State = StateLost
	}
}

// ReidCandidate stages a relocation candidate.  The first candidate is
// held back; a second candidate on the next evaluation within the
// confirmation radius accepts the relocation and returns true.  A lone
// match, however strong, never relocates the tracker on its own
func (t *Tracker) ReidCandidate(kf *KalmanFilter, x, y, conf float64,
	cfg Config) bool {

	if t.Frozen {
		return false
	}

	if s := t.Reid.Staged; s != nil {
		dx, dy := x-s.X, y-s.Y
		if dx*dx+dy*dy <= cfg.ConfirmRadius*cfg.ConfirmRadius {
			t.Reacquire(kf, x, y, conf)
			return true
		}
	}

	t.Reid.Staged = &Staged{X: x, Y: y}
	return false
}

// ClearStaged drops the pending relocation candidate.  Called when an
// evaluation produces no candidate, so confirmation only ever happens
// across consecutive agreeing evaluations
func (t *Tracker) ClearStaged() {
	t.Reid.Staged = nil
}

// Reacquire restarts tracking at a relocated position.  Used after a
// confirmed re-identification or a claimed detection match
func (t *Tracker) Reacquire(kf *KalmanFilter, x, y, conf float64) {
	kf.Initiate(t.Motion.mean, t.Motion.cov,
		Measurement{float32(x), float32(y)})
	t.syncMotion()

	t.Motion.DisplayX, t.Motion.DisplayY = x, y

	t.State = StateTracking
	t.Confidence = conf
	t.FramesLost = 0
	t.FramesOccluded = 0
	t.Reid.Staged = nil
}

// MarkLost forces the tracker into the Lost state, used when the target
// leaves the frame bounds or an external validation rejects it
func (t *Tracker) MarkLost() {
	if t.Frozen {
		return
	}

	t.State = StateLost
	t.Confidence = 0
	t.FramesLost = 0
	t.FramesOccluded = 0
	t.Reid.Staged = nil
}

func hypot(x, y float64) float64 {
	return math.Sqrt(x*x + y*y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
